package storage

import (
	"context"
	"encoding/json"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

// BadgerStore implements Store with Badger DB. Records are stored as JSON
// under prefixed keys; the per-VM logs are stored whole-slice under a
// single key and rewritten inside the update transaction.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // disable badger logs for test clarity
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func vmKey(id string) []byte {
	return []byte("vm:" + CanonicalID(id))
}

func eventsKey(vmID string) []byte {
	return []byte("events:" + CanonicalID(vmID))
}

func scriptsKey(vmID string) []byte {
	return []byte("scripts:" + CanonicalID(vmID))
}

func samplesKey(vmID string) []byte {
	return []byte("samples:" + CanonicalID(vmID))
}

func (s *BadgerStore) SaveVM(ctx context.Context, vm *models.VM) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(vm)
		if err != nil {
			return err
		}
		return txn.Set(vmKey(vm.ID), data)
	})
}

func (s *BadgerStore) GetVM(ctx context.Context, id string) (*models.VM, error) {
	var out models.VM
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(vmKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListVMs(ctx context.Context) ([]*models.VM, error) {
	var out []*models.VM
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("vm:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var vm models.VM
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &vm)
			}); err != nil {
				return err
			}
			out = append(out, &vm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) DeleteVM(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := vmKey(id)
		if _, err := txn.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (s *BadgerStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	return appendRecord(s.db, eventsKey(ev.VMID), ev)
}

func (s *BadgerStore) ListEvents(ctx context.Context, vmID string) ([]*models.Event, error) {
	return listRecords[models.Event](s.db, eventsKey(vmID))
}

func (s *BadgerStore) AppendScript(ctx context.Context, se *models.ScriptExecution) error {
	return appendRecord(s.db, scriptsKey(se.VMID), se)
}

func (s *BadgerStore) ListScripts(ctx context.Context, vmID string) ([]*models.ScriptExecution, error) {
	return listRecords[models.ScriptExecution](s.db, scriptsKey(vmID))
}

func (s *BadgerStore) AppendSample(ctx context.Context, ms *models.MetricSample) error {
	return appendRecord(s.db, samplesKey(ms.VMID), ms)
}

func (s *BadgerStore) ListSamples(ctx context.Context, vmID string) ([]*models.MetricSample, error) {
	return listRecords[models.MetricSample](s.db, samplesKey(vmID))
}

func appendRecord[T any](db *badger.DB, key []byte, rec *T) error {
	return db.Update(func(txn *badger.Txn) error {
		var list []*T
		item, err := txn.Get(key)
		switch err {
		case nil:
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &list)
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
		default:
			return err
		}
		list = append(list, rec)
		data, err := json.Marshal(list)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func listRecords[T any](db *badger.DB, key []byte) ([]*T, error) {
	var list []*T
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &list)
		})
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
