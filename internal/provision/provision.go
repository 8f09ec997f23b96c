package provision

import (
	"context"

	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

// Source tags whether a descriptor came from a real upstream backend or
// was synthesized locally.
type Source string

const (
	SourceReal      Source = "real"
	SourceSimulated Source = "simulated"
)

// Result is the descriptor a backend produces for one VM. Origin URLs are
// set only when a real upstream exists; the lifecycle manager defaults
// them to the public pair otherwise.
type Result struct {
	ContainerID    string
	NoVNCURL       string
	AgentURL       string
	OriginNoVNCURL string
	OriginAgentURL string
	PublicAddress  string
	ChromeVersion  string
	RuntimeVersion string
	Memory         string
	CPU            string
	Storage        string
	Source         Source
	Metadata       map[string]string
}

// Backend provisions a single VM. Implementations read only
// id/name/instance-type/server-id off the record.
type Backend interface {
	Provision(ctx context.Context, vm *models.VM) (*Result, error)
}

// Provisioner selects a backend per request and applies the system-wide
// fallback rule: a backend error degrades to the edge backend's
// synthesized descriptor instead of propagating.
type Provisioner struct {
	edge  Backend
	cloud Backend
	log   *zap.Logger
}

func NewProvisioner(edge, cloud Backend, log *zap.Logger) *Provisioner {
	return &Provisioner{edge: edge, cloud: cloud, log: log}
}

// Provision resolves the strategy for the record and runs the chosen
// backend. Only an edge failure (not expected, the edge backend is
// infallible) surfaces as an error.
func (p *Provisioner) Provision(ctx context.Context, vm *models.VM) (*Result, Strategy, error) {
	strategy := SelectStrategy(vm.InstanceType, vm.ServerID)
	backend := p.edge
	if strategy == StrategyCloudManaged {
		backend = p.cloud
	}

	res, err := backend.Provision(ctx, vm)
	if err != nil {
		p.log.Warn("backend failed, degrading to edge",
			zap.String("vm_id", vm.ID),
			zap.String("strategy", string(strategy)),
			zap.Error(err))
		res, err = p.edge.Provision(ctx, vm)
	}
	return res, strategy, err
}
