package provision

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

const (
	edgeChromeVersion  = "120.0.6099.109"
	edgeRuntimeVersion = "edge-runtime-1.4.2"
	defaultEdgeLatency = 150 * time.Millisecond
)

// EdgeBackend synthesizes a deterministic descriptor from the VM id. It
// simulates provisioning latency but never fails; a canceled context just
// skips the delay.
type EdgeBackend struct {
	// Latency bounds the simulated delay; zero means the default.
	Latency time.Duration
}

func NewEdgeBackend() *EdgeBackend {
	return &EdgeBackend{Latency: defaultEdgeLatency}
}

func (e *EdgeBackend) Provision(ctx context.Context, vm *models.VM) (*Result, error) {
	delay := e.Latency
	if delay <= 0 {
		delay = defaultEdgeLatency
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	short := shortID(vm.ID)
	host := fmt.Sprintf("edge-%s.chrome-vm.local", short)
	return &Result{
		ContainerID:    "edge-chrome-" + short,
		NoVNCURL:       fmt.Sprintf("https://%s/novnc", host),
		AgentURL:       fmt.Sprintf("https://%s/agent", host),
		PublicAddress:  pseudoAddress(vm.ID),
		ChromeVersion:  edgeChromeVersion,
		RuntimeVersion: edgeRuntimeVersion,
		Memory:         "2GB",
		CPU:            "2 vCPU",
		Storage:        "10GB",
		Source:         SourceSimulated,
	}, nil
}

// shortID returns the first eight characters of the id, enough for
// readable host and container names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// pseudoAddress derives a stable private address from the id.
func pseudoAddress(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	v := h.Sum32()
	return fmt.Sprintf("10.%d.%d.%d", byte(v>>16), byte(v>>8), byte(v))
}
