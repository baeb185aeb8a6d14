package factory

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/loykin/walletvisor/internal/store"
	"github.com/loykin/walletvisor/internal/store/memory"
	my "github.com/loykin/walletvisor/internal/store/mysql"
	pg "github.com/loykin/walletvisor/internal/store/postgres"
	sq "github.com/loykin/walletvisor/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - memory:   "memory://"
//   - sqlite:   "sqlite://<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - mysql:    "mysql://<user:pass@tcp(host:port)/db>"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	switch {
	case strings.HasPrefix(ld, "memory://"):
		return memory.New(), nil
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "mysql://"):
		return my.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(strings.TrimPrefix(d, "sqlite://"))
	}
	// default to sqlite path
	return sq.New(d)
}

// New builds a store from cfg and applies its pool settings where the
// backend exposes a database/sql handle.
func New(cfg store.Config) (store.Store, error) {
	st, err := NewFromDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if h, ok := st.(interface{ SQL() *sql.DB }); ok {
		db := h.SQL()
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxAge > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxAge)
		}
	}
	return st, nil
}
