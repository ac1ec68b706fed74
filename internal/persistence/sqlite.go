package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spec-kit/cjs-api/internal/config"
)

// SQLite wraps an embedded database handle.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite opens the database file and applies the embedded migrations.
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path not configured")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", cfg.Path, cfg.BusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; the UNIQUE constraint still decides conflicts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := RunSQLiteMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("opened sqlite", zap.String("path", cfg.Path))
	return &SQLite{DB: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("sqlite not configured")
	}
	return s.DB.PingContext(ctx)
}
