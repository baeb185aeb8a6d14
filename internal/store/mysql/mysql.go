// Package mysql stores wallet records in MySQL through GORM.
package mysql

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/loykin/walletvisor/internal/store"
)

type walletRecord struct {
	Username  string `gorm:"primaryKey;size:128"`
	Password  string `gorm:"size:64;not null;default:''"`
	Created   bool   `gorm:"not null;default:false"`
	Connected bool   `gorm:"not null;default:false"`
	Port      int    `gorm:"not null;default:0"`
	Container string `gorm:"size:80;not null;default:''"`
	StartedAt *time.Time
	UpdatedAt time.Time
}

func (walletRecord) TableName() string { return "wallet_record" }

func toModel(r store.Record) walletRecord {
	m := walletRecord{
		Username:  r.Username,
		Password:  r.Password,
		Created:   r.Created,
		Connected: r.Connected,
		Port:      r.Port,
		Container: r.Container,
		UpdatedAt: r.UpdatedAt,
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		m.StartedAt = &t
	}
	return m
}

func fromModel(m walletRecord) store.Record {
	r := store.Record{
		Username:  m.Username,
		Password:  m.Password,
		Created:   m.Created,
		Connected: m.Connected,
		Port:      m.Port,
		Container: m.Container,
		UpdatedAt: m.UpdatedAt,
	}
	if m.StartedAt != nil {
		r.StartedAt = *m.StartedAt
	}
	return r
}

type DB struct {
	db  *gorm.DB
	now func() time.Time
}

// New opens dsn, a go-sql-driver DSN optionally prefixed with mysql://.
// parseTime is forced on so DATETIME columns scan into time.Time.
func New(dsn string) (*DB, error) {
	d := strings.TrimPrefix(strings.TrimSpace(dsn), "mysql://")
	if d == "" {
		return nil, errors.New("empty mysql dsn")
	}
	if !strings.Contains(d, "parseTime=") {
		sep := "?"
		if strings.Contains(d, "?") {
			sep = "&"
		}
		d += sep + "parseTime=true&loc=UTC"
	}
	g, err := gorm.Open(mysql.Open(d), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return &DB{db: g, now: time.Now}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&walletRecord{})
}

func (s *DB) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *DB) Load(ctx context.Context, username string) (store.Record, bool, error) {
	var m walletRecord
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Record{Username: username}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return fromModel(m), true, nil
}

func (s *DB) Save(ctx context.Context, rec store.Record) error {
	rec, err := store.Prepare(rec, s.now())
	if err != nil {
		return err
	}
	m := toModel(rec)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&m).Error
}

func (s *DB) List(ctx context.Context) ([]string, error) {
	out := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&walletRecord{}).Order("username").Pluck("username", &out).Error
	return out, err
}

var _ store.Store = (*DB)(nil)
