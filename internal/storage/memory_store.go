package storage

import (
	"context"
	"sync"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

// MemoryStore implements Store with mutex-guarded maps. Default when no
// database path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	vms     map[string]*models.VM
	events  map[string][]*models.Event
	scripts map[string][]*models.ScriptExecution
	samples map[string][]*models.MetricSample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vms:     make(map[string]*models.VM),
		events:  make(map[string][]*models.Event),
		scripts: make(map[string][]*models.ScriptExecution),
		samples: make(map[string][]*models.MetricSample),
	}
}

func (s *MemoryStore) SaveVM(_ context.Context, vm *models.VM) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := vm.Clone()
	c.ID = CanonicalID(c.ID)
	s.vms[c.ID] = c
	return nil
}

func (s *MemoryStore) GetVM(_ context.Context, id string) (*models.VM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vm, ok := s.vms[CanonicalID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return vm.Clone(), nil
}

func (s *MemoryStore) ListVMs(_ context.Context) ([]*models.VM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VM, 0, len(s.vms))
	for _, vm := range s.vms {
		out = append(out, vm.Clone())
	}
	return out, nil
}

func (s *MemoryStore) DeleteVM(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := CanonicalID(id)
	if _, ok := s.vms[key]; !ok {
		return ErrNotFound
	}
	delete(s.vms, key)
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := CanonicalID(ev.VMID)
	s.events[key] = append(s.events[key], ev)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, vmID string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Event(nil), s.events[CanonicalID(vmID)]...), nil
}

func (s *MemoryStore) AppendScript(_ context.Context, se *models.ScriptExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := CanonicalID(se.VMID)
	s.scripts[key] = append(s.scripts[key], se)
	return nil
}

func (s *MemoryStore) ListScripts(_ context.Context, vmID string) ([]*models.ScriptExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.ScriptExecution(nil), s.scripts[CanonicalID(vmID)]...), nil
}

func (s *MemoryStore) AppendSample(_ context.Context, ms *models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := CanonicalID(ms.VMID)
	s.samples[key] = append(s.samples[key], ms)
	return nil
}

func (s *MemoryStore) ListSamples(_ context.Context, vmID string) ([]*models.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.MetricSample(nil), s.samples[CanonicalID(vmID)]...), nil
}

func (s *MemoryStore) Close() error { return nil }
