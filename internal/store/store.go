package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord is returned by Save when a record breaks an invariant.
var ErrInvalidRecord = errors.New("invalid wallet record")

// Record is the persisted wallet state of one user, keyed by Username.
// Zero values are the canonical empties: Port 0, Container "" and a zero
// StartedAt mean no running wallet process.
type Record struct {
	Username  string
	Password  string
	Created   bool
	Connected bool
	Port      int
	Container string
	StartedAt time.Time
	UpdatedAt time.Time
}

// ClearConnection drops every field that describes a running process.
func (r *Record) ClearConnection() {
	r.Connected = false
	r.Port = 0
	r.Container = ""
	r.StartedAt = time.Time{}
}

// Reset returns the record to its never-provisioned state.
func (r *Record) Reset() {
	r.ClearConnection()
	r.Password = ""
	r.Created = false
}

// Expired reports whether the session started more than lifetime before now.
func (r Record) Expired(now time.Time, lifetime time.Duration) bool {
	return !r.StartedAt.IsZero() && now.Sub(r.StartedAt) > lifetime
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	switch {
	case r.Username == "":
		return fmt.Errorf("%w: empty username", ErrInvalidRecord)
	case r.Connected && (r.Port == 0 || r.Container == "" || r.StartedAt.IsZero()):
		return fmt.Errorf("%w: %s connected without port, container and start time", ErrInvalidRecord, r.Username)
	case r.Connected && !r.Created:
		return fmt.Errorf("%w: %s connected but never created", ErrInvalidRecord, r.Username)
	case r.Created && r.Password == "":
		return fmt.Errorf("%w: %s created without password", ErrInvalidRecord, r.Username)
	case r.Port < 0 || r.Port > 65535:
		return fmt.Errorf("%w: %s port %d out of range", ErrInvalidRecord, r.Username, r.Port)
	}
	return nil
}

// Store persists wallet records. Load of an unknown user returns a default
// record and false, never an error. Save is an upsert with last-writer-wins
// semantics and refreshes UpdatedAt.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Load(ctx context.Context, username string) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
	// List returns every known username in ascending order.
	List(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Prepare validates rec and stamps UpdatedAt. Implementations call it at the
// start of Save.
func Prepare(rec Record, now time.Time) (Record, error) {
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = now.UTC()
	if !rec.StartedAt.IsZero() {
		rec.StartedAt = rec.StartedAt.UTC()
	}
	return rec, nil
}
