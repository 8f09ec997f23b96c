package models

import "time"

// Status is the lifecycle state of a VM record.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// VM is the core domain object representing a simulated hosted Chrome
// instance. Shared between the server, storage and API layers.
//
// The NoVNCURL/AgentURL pair is what clients are handed; the Origin pair
// points at the real upstream backend those URLs front, when one exists.
// For records provisioned purely locally the origin pair mirrors the
// public pair.
type VM struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       Status `json:"status"`
	InstanceType string `json:"instance_type,omitempty"`
	ContainerID  string `json:"container_id,omitempty"`

	NoVNCURL       string `json:"novnc_url,omitempty"`
	AgentURL       string `json:"agent_url,omitempty"`
	OriginNoVNCURL string `json:"origin_novnc_url,omitempty"`
	OriginAgentURL string `json:"origin_agent_url,omitempty"`

	PublicAddress  string `json:"public_address,omitempty"`
	ChromeVersion  string `json:"chrome_version,omitempty"`
	RuntimeVersion string `json:"runtime_version,omitempty"`

	// Resource descriptors are opaque display strings.
	Memory  string `json:"memory,omitempty"`
	CPU     string `json:"cpu,omitempty"`
	Storage string `json:"storage,omitempty"`

	ServerID    string `json:"server_id,omitempty"`
	ServerName  string `json:"server_name,omitempty"`
	Region      string `json:"region,omitempty"`
	Provisioner string `json:"provisioner,omitempty"`
	Simulated   bool   `json:"simulated,omitempty"`

	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActiveAt time.Time         `json:"last_active_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing the metadata map.
func (v *VM) Clone() *VM {
	c := *v
	if v.Metadata != nil {
		c.Metadata = make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			c.Metadata[k] = val
		}
	}
	return &c
}

// ScriptExecution is an append-only record of a script submitted against a
// VM's agent.
type ScriptExecution struct {
	ID        string    `json:"id"`
	VMID      string    `json:"vm_id"`
	Script    string    `json:"script"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MetricSample is an append-only instrumentation sample keyed by VM id.
type MetricSample struct {
	VMID  string    `json:"vm_id"`
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Event is an append-only lifecycle event keyed by VM id.
type Event struct {
	VMID    string    `json:"vm_id"`
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}
