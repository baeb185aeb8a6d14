package store

import "time"

// Config selects and tunes a record store.
type Config struct {
	// DSN chooses the backend by prefix: memory://, sqlite://<path>,
	// postgres:// or postgresql://, mysql://<go-sql-driver dsn>, or a bare
	// sqlite file path.
	DSN string `toml:"dsn" mapstructure:"dsn"`

	MaxOpenConns int           `toml:"max_open_conns,omitempty" mapstructure:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`
	ConnMaxAge   time.Duration `toml:"conn_max_age,omitempty" mapstructure:"conn_max_age"`
}
