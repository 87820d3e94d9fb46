package persistence

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

var ErrNotInitialized = errors.New("db: gorm connection is not initialized")

type Config struct {
	WriteDSN          string
	ReadDSN           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	SlowThreshold     time.Duration
	Log               *logrus.Logger
}

// DB is the watcher's gorm handle. Reads go to replicas through dbresolver
// unless a transaction is carried in the context.
type DB struct {
	Conn *gorm.DB
}

var _ repository.Store = (*DB)(nil)

func New(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.WriteDSN == "" {
		return nil, errors.New("db: WriteDSN is required")
	}

	primary := dialector(cfg.WriteDSN)
	gdb, err := gorm.Open(primary, &gorm.Config{Logger: gormLogger(cfg)})
	if err != nil {
		return nil, err
	}

	if replicas := replicaDialectors(cfg); len(replicas) > 0 {
		resolver := dbresolver.Register(dbresolver.Config{
			Sources:  []gorm.Dialector{primary},
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxOpenConns(int(cfg.MaxConns)).
			SetMaxIdleConns(int(cfg.MinConns)).
			SetConnMaxLifetime(cfg.MaxConnLifetime).
			SetConnMaxIdleTime(cfg.MaxConnIdleTime)
		if err := gdb.Use(resolver); err != nil {
			return nil, err
		}
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	tunePool(sqlDB, cfg)
	return &DB{Conn: gdb}, nil
}

// Wrap adapts an already opened gorm connection, whatever its dialect.
func Wrap(gdb *gorm.DB) *DB {
	return &DB{Conn: gdb}
}

// SQL exposes the primary pool for callers that need a dedicated session,
// such as advisory locks.
func (db *DB) SQL() (*sql.DB, error) {
	if db == nil || db.Conn == nil {
		return nil, ErrNotInitialized
	}
	return db.Conn.DB()
}

func (db *DB) Close() {
	if sqlDB, err := db.SQL(); err == nil {
		_ = sqlDB.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.SQL()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func dialector(dsn string) gorm.Dialector {
	return postgres.New(postgres.Config{
		DSN:                  normalizeDSN(dsn),
		PreferSimpleProtocol: true,
	})
}

// replicaDialectors returns nil when the read DSNs only point back at the primary.
func replicaDialectors(cfg Config) []gorm.Dialector {
	primary := normalizeDSN(cfg.WriteDSN)
	var out []gorm.Dialector
	distinct := false
	for _, dsn := range strings.Split(cfg.ReadDSN, ",") {
		dsn = strings.TrimSpace(dsn)
		if dsn == "" {
			continue
		}
		if normalizeDSN(dsn) != primary {
			distinct = true
		}
		out = append(out, dialector(dsn))
	}
	if !distinct {
		return nil
	}
	return out
}

func tunePool(sqlDB *sql.DB, cfg Config) {
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}
}

// normalizeDSN turns off pgx statement caching so the pool works behind
// transaction-mode poolers.
func normalizeDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Scheme == "" {
		return dsn
	}
	q := parsed.Query()
	if q.Get("statement_cache_capacity") == "" {
		q.Set("statement_cache_capacity", "0")
	}
	if q.Get("default_query_exec_mode") == "" {
		q.Set("default_query_exec_mode", "simple_protocol")
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func gormLogger(cfg Config) logger.Interface {
	if cfg.Log == nil {
		return logger.Default.LogMode(logger.Warn)
	}
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return logger.New(cfg.Log, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
