package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/walletvisor/internal/store"
)

type DB struct {
	db  *sql.DB
	now func() time.Time
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d, now: time.Now}, nil
}

// SQL exposes the handle for pool tuning.
func (p *DB) SQL() *sql.DB { return p.db }

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallet_record(
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL DEFAULT '',
			created BOOLEAN NOT NULL DEFAULT false,
			connected BOOLEAN NOT NULL DEFAULT false,
			port INTEGER NOT NULL DEFAULT 0,
			container TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_record_started ON wallet_record(started_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Load(ctx context.Context, username string) (store.Record, bool, error) {
	r := store.Record{Username: username}
	var started sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT password, created, connected, port, container, started_at, updated_at
		FROM wallet_record WHERE username=$1;`, username).
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

func (p *DB) Save(ctx context.Context, rec store.Record) error {
	rec, err := store.Prepare(rec, p.now())
	if err != nil {
		return err
	}
	var started any
	if !rec.StartedAt.IsZero() {
		started = rec.StartedAt
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO wallet_record(username, password, created, connected, port, container, started_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT(username) DO UPDATE SET
			password=EXCLUDED.password,
			created=EXCLUDED.created,
			connected=EXCLUDED.connected,
			port=EXCLUDED.port,
			container=EXCLUDED.container,
			started_at=EXCLUDED.started_at,
			updated_at=EXCLUDED.updated_at;`,
		rec.Username, rec.Password, rec.Created, rec.Connected, rec.Port, rec.Container, started, rec.UpdatedAt)
	return err
}

func (p *DB) List(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT username FROM wallet_record ORDER BY username COLLATE "C";`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
