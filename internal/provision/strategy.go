package provision

import "strings"

// Strategy names the provisioning backend chosen for a request.
type Strategy string

const (
	StrategyEdge         Strategy = "edge"
	StrategyCloudManaged Strategy = "cloud-managed"
)

// CloudManagedServerID is the server preference that forces the
// cloud-managed strategy regardless of instance type.
const CloudManagedServerID = "default-google-cloud-server"

// Cloud machine families get the cloud-managed strategy; burstable
// families stay on edge. First match wins, default is edge.
var (
	cloudFamilies     = []string{"e2-", "n1-", "n2-", "c2-", "a2-", "m1-", "m2-"}
	burstableFamilies = []string{"t2.", "t3."}
)

// SelectStrategy maps an instance type and optional server preference to a
// strategy. Total: every input maps to exactly one of the fixed set.
func SelectStrategy(instanceType, serverID string) Strategy {
	for _, prefix := range cloudFamilies {
		if strings.HasPrefix(instanceType, prefix) {
			return StrategyCloudManaged
		}
	}
	for _, prefix := range burstableFamilies {
		if strings.HasPrefix(instanceType, prefix) {
			return StrategyEdge
		}
	}
	if serverID == CloudManagedServerID {
		return StrategyCloudManaged
	}
	return StrategyEdge
}
