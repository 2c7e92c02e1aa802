package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/labscan/internal/common"
)

// timeLayout keeps lexical order equal to chronological order for TEXT columns.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type Config struct {
	DSN              string // postgres://... or a sqlite DSN; empty means in-memory sqlite
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB bundles the ent SQL driver with the dialect used to build statements.
type DB struct {
	drv     *entsql.Driver
	dialect string
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

func (db *DB) builder() *entsql.DialectBuilder { return entsql.Dialect(db.dialect) }

func (db *DB) Dialect() string { return db.dialect }

// Open connects to Postgres through a pgx pool when the DSN is a postgres URL,
// otherwise to SQLite.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if isPostgres(cfg.DSN) {
		return openPostgres(ctx, cfg, logger)
	}
	return openSQLite(cfg, logger)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "labscan"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	sqldb := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, sqldb), dialect: dialect.Postgres, pool: pool, logger: logger}, nil
}

func openSQLite(cfg Config, logger *slog.Logger) (*DB, error) {
	dsn := cfg.DSN
	memory := dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	if dsn == "" {
		dsn = ":memory:"
	}
	logger.Info("opening sqlite database", "dsn", dsn)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers.
	sqldb.SetMaxOpenConns(1)
	if !memory {
		if _, err := sqldb.Exec("PRAGMA journal_mode=WAL"); err != nil {
			logger.Warn("failed to enable WAL", "error", err)
		}
	}
	return &DB{drv: entsql.OpenDB(dialect.SQLite, sqldb), dialect: dialect.SQLite, logger: logger}, nil
}

// Close closes the database connections gracefully.
func (db *DB) Close() {
	db.logger.Info("closing database connections")
	if err := db.drv.Close(); err != nil {
		db.logger.Error("failed to close sql driver", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	db.logger.Info("database connections closed")
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	db.logger.Debug("pinging database")
	if db.pool != nil {
		return db.pool.Ping(ctx)
	}
	return db.drv.DB().PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS extract_job (
		id            TEXT PRIMARY KEY,
		source_path   TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		format        TEXT NOT NULL,
		status        TEXT NOT NULL,
		started_at    TEXT NOT NULL,
		finished_at   TEXT,
		error_message TEXT,
		ocr_text      TEXT,
		ocr_method    TEXT,
		pages         INTEGER NOT NULL DEFAULT 0,
		record_id     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS extract_job_content_hash_idx ON extract_job (content_hash)`,
	`CREATE TABLE IF NOT EXISTS lab_record (
		id                     TEXT PRIMARY KEY,
		job_id                 TEXT NOT NULL,
		source_path            TEXT NOT NULL,
		content_hash           TEXT NOT NULL,
		patient_name           TEXT NOT NULL DEFAULT '',
		hospital_name          TEXT NOT NULL DEFAULT '',
		lab_name               TEXT NOT NULL DEFAULT '',
		lab_date               TEXT NOT NULL DEFAULT '',
		features               TEXT NOT NULL,
		defaults               TEXT NOT NULL,
		prediction_label       TEXT,
		prediction_probability DOUBLE PRECISION,
		created_at             TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS lab_record_created_at_idx ON lab_record (created_at)`,
}

// Migrate creates the tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := db.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			db.logger.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db.logger.Info("database schema ready")
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// ConfigFrom maps the environment-driven database settings onto Config.
func ConfigFrom(c common.DatabaseConfig) Config {
	return Config{
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}
