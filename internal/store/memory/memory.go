// Package memory is an in-process store.Store, used by tests and
// single-node setups that do not need persistence.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loykin/walletvisor/internal/store"
)

type DB struct {
	mu   sync.RWMutex
	recs map[string]store.Record
	now  func() time.Time
}

func New() *DB {
	return &DB{recs: map[string]store.Record{}, now: time.Now}
}

func (m *DB) EnsureSchema(context.Context) error { return nil }
func (m *DB) Ping(context.Context) error         { return nil }
func (m *DB) Close() error                       { return nil }

func (m *DB) Load(_ context.Context, username string) (store.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[username]
	if !ok {
		return store.Record{Username: username}, false, nil
	}
	return rec, true, nil
}

func (m *DB) Save(_ context.Context, rec store.Record) error {
	rec, err := store.Prepare(rec, m.now())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.recs[rec.Username] = rec
	m.mu.Unlock()
	return nil
}

func (m *DB) List(context.Context) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.recs))
	for u := range m.recs {
		out = append(out, u)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

var _ store.Store = (*DB)(nil)
