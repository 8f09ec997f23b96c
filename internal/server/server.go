package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
	"github.com/devghori1264/chromevm-sim/internal/natsclient"
	"github.com/devghori1264/chromevm-sim/internal/provision"
	"github.com/devghori1264/chromevm-sim/internal/storage"
)

var (
	ErrNameRequired = errors.New("name required")
	ErrNotFound     = storage.ErrNotFound
)

// Server orchestrates the VM lifecycle: create, start, restart, stop,
// delete, plus the per-VM instrumentation logs. All mutations of one VM id
// are serialized behind a per-id mutex.
type Server struct {
	store  storage.Store
	prov   *provision.Provisioner
	events *natsclient.Publisher // optional; nil means store-only events
	log    *zap.Logger
	tracer trace.Tracer

	// operations mutex per VM id
	opMu sync.Map
	// notifyClient carries the best-effort upstream restart signal.
	notifyClient *http.Client
	now          func() time.Time
}

// CreateRequest is the lifecycle manager's input for Create. VMID is
// optional; when empty an id is generated.
type CreateRequest struct {
	Name         string
	InstanceType string
	ServerID     string
	VMID         string
}

// New creates a new server instance. events may be nil.
func New(store storage.Store, prov *provision.Provisioner, events *natsclient.Publisher, log *zap.Logger) *Server {
	return &Server{
		store:        store,
		prov:         prov,
		events:       events,
		log:          log,
		tracer:       otel.Tracer("chromevm-sim/server"),
		notifyClient: &http.Client{Timeout: 10 * time.Second},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create writes an initializing record, synchronously provisions it and
// persists the outcome. Provisioning failures never fail the call itself:
// the record lands in ready (possibly simulated) or error with the message
// recorded, and the caller observes the final status on the returned
// record or a subsequent Get.
func (s *Server) Create(ctx context.Context, req CreateRequest) (*models.VM, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrNameRequired
	}

	id := req.VMID
	if id == "" {
		id = uuid.NewString()
	}
	id = storage.CanonicalID(id)

	s.lockVM(id)
	defer s.unlockVM(id)

	now := s.now()
	vm := &models.VM{
		ID:           id,
		Name:         req.Name,
		Status:       models.StatusInitializing,
		InstanceType: req.InstanceType,
		ServerID:     req.ServerID,
		Version:      1,
		CreatedAt:    now,
		LastActiveAt: now,
		Metadata:     map[string]string{},
	}
	if err := s.store.SaveVM(ctx, vm); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	provCtx, span := s.tracer.Start(ctx, "vm.provision",
		trace.WithAttributes(attribute.String("vm.id", id)))
	started := s.now()
	res, strategy, err := s.prov.Provision(provCtx, vm)
	span.End()

	if err != nil {
		vm.Status = models.StatusError
		vm.Error = err.Error()
		s.log.Error("provisioning failed", zap.String("vm_id", id), zap.Error(err))
	} else {
		mergeResult(vm, res, strategy)
		vm.Status = models.StatusReady
	}
	vm.Version++
	vm.LastActiveAt = s.now()

	if err := s.store.SaveVM(ctx, vm); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	_ = s.store.AppendSample(ctx, &models.MetricSample{
		VMID:  id,
		Name:  "provision_ms",
		Value: float64(s.now().Sub(started).Milliseconds()),
		At:    s.now(),
	})
	s.appendEvent(ctx, id, "vm.created", string(vm.Status))
	return vm, nil
}

// Get fetches a VM by id or alias key.
func (s *Server) Get(ctx context.Context, id string) (*models.VM, error) {
	return s.store.GetVM(ctx, id)
}

// List returns all records in store order.
func (s *Server) List(ctx context.Context) ([]*models.VM, error) {
	return s.store.ListVMs(ctx)
}

// Start sets the VM ready, after a best-effort restart signal upstream.
func (s *Server) Start(ctx context.Context, id string) (*models.VM, error) {
	return s.transition(ctx, id, models.StatusReady, "vm.started", true)
}

// Restart puts the VM back into initializing.
func (s *Server) Restart(ctx context.Context, id string) (*models.VM, error) {
	return s.transition(ctx, id, models.StatusInitializing, "vm.restarted", true)
}

// Stop marks the VM stopped.
func (s *Server) Stop(ctx context.Context, id string) (*models.VM, error) {
	return s.transition(ctx, id, models.StatusStopped, "vm.stopped", false)
}

func (s *Server) transition(ctx context.Context, id string, to models.Status, event string, notify bool) (*models.VM, error) {
	id = storage.CanonicalID(id)
	s.lockVM(id)
	defer s.unlockVM(id)

	vm, err := s.store.GetVM(ctx, id)
	if err != nil {
		return nil, err
	}
	if notify {
		s.notifyAgentRestart(ctx, vm)
	}
	vm.Status = to
	vm.Version++
	vm.LastActiveAt = s.now()
	if err := s.store.SaveVM(ctx, vm); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, id, event, string(to))
	return vm, nil
}

// Delete marks the record stopped and removes it from the store.
func (s *Server) Delete(ctx context.Context, id string) error {
	id = storage.CanonicalID(id)
	s.lockVM(id)
	defer s.unlockVM(id)

	vm, err := s.store.GetVM(ctx, id)
	if err != nil {
		return err
	}
	vm.Status = models.StatusStopped
	vm.Version++
	vm.LastActiveAt = s.now()
	if err := s.store.SaveVM(ctx, vm); err != nil {
		return err
	}
	if err := s.store.DeleteVM(ctx, id); err != nil {
		return err
	}
	s.appendEvent(ctx, id, "vm.deleted", "")
	return nil
}

// RecordScript appends a script execution for the VM and best-effort
// forwards it to the upstream agent's /run endpoint when one exists.
func (s *Server) RecordScript(ctx context.Context, id, script string) (*models.ScriptExecution, error) {
	id = storage.CanonicalID(id)
	vm, err := s.store.GetVM(ctx, id)
	if err != nil {
		return nil, err
	}

	se := &models.ScriptExecution{
		ID:        uuid.NewString(),
		VMID:      id,
		Script:    script,
		Status:    "recorded",
		CreatedAt: s.now(),
	}
	if vm.OriginAgentURL != "" {
		payload, _ := json.Marshal(map[string]string{"script": script})
		target := strings.TrimSuffix(vm.OriginAgentURL, "/") + "/run"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(payload)))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			if resp, err := s.notifyClient.Do(req); err == nil {
				resp.Body.Close()
				se.Status = "forwarded"
			}
		}
	}
	if err := s.store.AppendScript(ctx, se); err != nil {
		return nil, err
	}
	return se, nil
}

func (s *Server) ListScripts(ctx context.Context, id string) ([]*models.ScriptExecution, error) {
	if _, err := s.store.GetVM(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListScripts(ctx, id)
}

func (s *Server) ListEvents(ctx context.Context, id string) ([]*models.Event, error) {
	return s.store.ListEvents(ctx, id)
}

func (s *Server) ListSamples(ctx context.Context, id string) ([]*models.MetricSample, error) {
	if _, err := s.store.GetVM(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListSamples(ctx, id)
}

// notifyAgentRestart fires a restart signal at the origin agent. Best
// effort: errors are logged and dropped, the transition proceeds.
func (s *Server) notifyAgentRestart(ctx context.Context, vm *models.VM) {
	if vm.OriginAgentURL == "" {
		return
	}
	target := strings.TrimSuffix(vm.OriginAgentURL, "/") + "/browser/restart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return
	}
	resp, err := s.notifyClient.Do(req)
	if err != nil {
		s.log.Debug("agent restart notify failed", zap.String("vm_id", vm.ID), zap.Error(err))
		return
	}
	resp.Body.Close()
}

// appendEvent records the lifecycle event in the store and mirrors it to
// NATS when a publisher is configured.
func (s *Server) appendEvent(ctx context.Context, id, typ, msg string) {
	ev := &models.Event{VMID: id, Type: typ, Message: msg, At: s.now()}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.log.Warn("append event", zap.String("vm_id", id), zap.Error(err))
	}
	if s.events != nil {
		payload, _ := json.Marshal(ev)
		s.events.PublishBestEffort(ctx, natsclient.SubjectVMEvents, payload)
	}
}

// mergeResult copies the provisioning descriptor onto the record. Origin
// URLs default to the public pair when the backend reports none, which is
// what lets the action proxy reach simulated agents too.
func mergeResult(vm *models.VM, res *provision.Result, strategy provision.Strategy) {
	vm.ContainerID = res.ContainerID
	vm.NoVNCURL = res.NoVNCURL
	vm.AgentURL = res.AgentURL
	vm.OriginNoVNCURL = res.OriginNoVNCURL
	if vm.OriginNoVNCURL == "" {
		vm.OriginNoVNCURL = res.NoVNCURL
	}
	vm.OriginAgentURL = res.OriginAgentURL
	if vm.OriginAgentURL == "" {
		vm.OriginAgentURL = res.AgentURL
	}
	vm.PublicAddress = res.PublicAddress
	vm.ChromeVersion = res.ChromeVersion
	vm.RuntimeVersion = res.RuntimeVersion
	vm.Memory = res.Memory
	vm.CPU = res.CPU
	vm.Storage = res.Storage
	vm.Provisioner = string(strategy)
	vm.Simulated = res.Source == provision.SourceSimulated
	if strategy == provision.StrategyCloudManaged {
		vm.ServerName = "google-cloud"
		vm.Region = "us-central1"
	} else {
		vm.ServerName = "edge-pool"
		vm.Region = "local"
	}
	for k, v := range res.Metadata {
		vm.Metadata[k] = v
	}
}

// lockVM ensures only one op per VM id at a time.
func (s *Server) lockVM(id string) {
	v, _ := s.opMu.LoadOrStore(id, &sync.Mutex{})
	v.(*sync.Mutex).Lock()
}

// unlockVM releases the op lock.
func (s *Server) unlockVM(id string) {
	v, ok := s.opMu.Load(id)
	if !ok {
		return
	}
	v.(*sync.Mutex).Unlock()
}
