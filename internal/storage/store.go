package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
)

// aliasPrefix is the legacy secondary key form. Both "{id}" and
// "working-vm-{id}" must resolve to the same authoritative record; the
// store keeps a single entry under the canonical id and normalizes lookups
// instead of maintaining two map entries that can drift.
const aliasPrefix = "working-vm-"

// CanonicalID strips the alias prefix so every key form a caller supplies
// resolves to the one record stored under the canonical id.
func CanonicalID(id string) string {
	return strings.TrimPrefix(id, aliasPrefix)
}

// Store persists VM records and their per-VM append-only logs. Kept as an
// interface so the in-memory and Badger implementations stay swappable.
type Store interface {
	SaveVM(ctx context.Context, vm *models.VM) error
	GetVM(ctx context.Context, id string) (*models.VM, error)
	ListVMs(ctx context.Context) ([]*models.VM, error)
	DeleteVM(ctx context.Context, id string) error

	AppendEvent(ctx context.Context, ev *models.Event) error
	ListEvents(ctx context.Context, vmID string) ([]*models.Event, error)
	AppendScript(ctx context.Context, se *models.ScriptExecution) error
	ListScripts(ctx context.Context, vmID string) ([]*models.ScriptExecution, error)
	AppendSample(ctx context.Context, ms *models.MetricSample) error
	ListSamples(ctx context.Context, vmID string) ([]*models.MetricSample, error)

	Close() error
}
