package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/walletvisor/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// every pooled connection to :memory: would see its own empty database
	if p == ":memory:" {
		d.SetMaxOpenConns(1)
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d, now: time.Now}, nil
}

// SQL exposes the handle for pool tuning.
func (s *DB) SQL() *sql.DB { return s.db }

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallet_record(
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL DEFAULT '',
			created BOOLEAN NOT NULL DEFAULT 0,
			connected BOOLEAN NOT NULL DEFAULT 0,
			port INTEGER NOT NULL DEFAULT 0,
			container TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_record_started ON wallet_record(started_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Load(ctx context.Context, username string) (store.Record, bool, error) {
	r := store.Record{Username: username}
	var started sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT password, created, connected, port, container, started_at, updated_at
		FROM wallet_record WHERE username=?;`, username).
		Scan(&r.Password, &r.Created, &r.Connected, &r.Port, &r.Container, &started, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{Username: username}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	if started.Valid {
		r.StartedAt = started.Time
	}
	return r, true, nil
}

func (s *DB) Save(ctx context.Context, rec store.Record) error {
	rec, err := store.Prepare(rec, s.now())
	if err != nil {
		return err
	}
	var started any
	if !rec.StartedAt.IsZero() {
		started = rec.StartedAt
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_record(username, password, created, connected, port, container, started_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password=excluded.password,
			created=excluded.created,
			connected=excluded.connected,
			port=excluded.port,
			container=excluded.container,
			started_at=excluded.started_at,
			updated_at=excluded.updated_at;`,
		rec.Username, rec.Password, rec.Created, rec.Connected, rec.Port, rec.Container, started, rec.UpdatedAt)
	return err
}

func (s *DB) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM wallet_record ORDER BY username;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

var _ store.Store = (*DB)(nil)
