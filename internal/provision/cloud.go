package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

const cloudChromeImage = "chromevm/chrome-headful:stable"

// CloudConfig carries the cloud-managed backend's settings. An empty
// Project means no credentials, which delegates everything to edge.
type CloudConfig struct {
	Project string
	Zone    string
	// Endpoint is the single external provisioning endpoint; empty means
	// provisioning is always simulated.
	Endpoint string
}

// CloudBackend first attempts the configured external provisioning
// endpoint; any failure falls back to a synthesized descriptor carrying a
// self-consistent set of cloud-style identifiers.
type CloudBackend struct {
	cfg    CloudConfig
	edge   Backend
	client *http.Client
	log    *zap.Logger
}

func NewCloudBackend(cfg CloudConfig, edge Backend, log *zap.Logger) *CloudBackend {
	if cfg.Zone == "" {
		cfg.Zone = "us-central1-a"
	}
	return &CloudBackend{
		cfg:  cfg,
		edge: edge,
		// nothing upstream guarantees responsiveness
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type endpointRequest struct {
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	Ports     map[string]int    `json:"ports"`
	Env       map[string]string `json:"env"`
	Resources endpointResources `json:"resources"`
}

type endpointResources struct {
	Memory  string `json:"memory"`
	CPU     string `json:"cpu"`
	Storage string `json:"storage"`
}

type endpointResponse struct {
	ContainerID    string `json:"container_id"`
	NoVNCURL       string `json:"novnc_url"`
	AgentURL       string `json:"agent_url"`
	PublicAddress  string `json:"public_address"`
	ChromeVersion  string `json:"chrome_version"`
	RuntimeVersion string `json:"runtime_version"`
}

func (c *CloudBackend) Provision(ctx context.Context, vm *models.VM) (*Result, error) {
	if c.cfg.Project == "" {
		return c.edge.Provision(ctx, vm)
	}
	if c.cfg.Endpoint != "" {
		res, err := c.provisionRemote(ctx, vm)
		if err == nil {
			return res, nil
		}
		c.log.Warn("provisioning endpoint failed, simulating",
			zap.String("vm_id", vm.ID),
			zap.String("endpoint", c.cfg.Endpoint),
			zap.Error(err))
	}
	return c.simulate(vm), nil
}

func (c *CloudBackend) provisionRemote(ctx context.Context, vm *models.VM) (*Result, error) {
	payload, err := json.Marshal(endpointRequest{
		Name:  vm.Name,
		Image: cloudChromeImage,
		Ports: map[string]int{"novnc": 6080, "agent": 8080},
		Env:   map[string]string{"VM_ID": vm.ID},
		Resources: endpointResources{
			Memory:  "8GB",
			CPU:     "4 vCPU",
			Storage: "50GB",
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provisioning endpoint returned %d", resp.StatusCode)
	}

	var out endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode endpoint response: %w", err)
	}

	// The endpoint's addresses are the real upstream: they become both the
	// public pair and the origin pair.
	return &Result{
		ContainerID:    out.ContainerID,
		NoVNCURL:       out.NoVNCURL,
		AgentURL:       out.AgentURL,
		OriginNoVNCURL: out.NoVNCURL,
		OriginAgentURL: out.AgentURL,
		PublicAddress:  out.PublicAddress,
		ChromeVersion:  out.ChromeVersion,
		RuntimeVersion: out.RuntimeVersion,
		Memory:         "8GB",
		CPU:            "4 vCPU",
		Storage:        "50GB",
		Source:         SourceReal,
	}, nil
}

// simulate fabricates a descriptor with cloud-style identifiers that are
// consistent with each other (instance name, zone, self link).
func (c *CloudBackend) simulate(vm *models.VM) *Result {
	short := shortID(vm.ID)
	instance := "chrome-vm-" + short
	host := fmt.Sprintf("%s.%s.c.%s.internal", instance, c.cfg.Zone, c.cfg.Project)
	return &Result{
		ContainerID:    instance,
		NoVNCURL:       fmt.Sprintf("https://%s/novnc", host),
		AgentURL:       fmt.Sprintf("https://%s/agent", host),
		PublicAddress:  pseudoAddress(vm.ID),
		ChromeVersion:  edgeChromeVersion,
		RuntimeVersion: "cloud-runtime-2.1.0",
		Memory:         "8GB",
		CPU:            "4 vCPU",
		Storage:        "50GB",
		Source:         SourceSimulated,
		Metadata: map[string]string{
			"gcp_project":   c.cfg.Project,
			"gcp_zone":      c.cfg.Zone,
			"gcp_instance":  instance,
			"gcp_self_link": fmt.Sprintf("https://www.googleapis.com/compute/v1/projects/%s/zones/%s/instances/%s", c.cfg.Project, c.cfg.Zone, instance),
		},
	}
}
