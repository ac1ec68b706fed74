package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFiles embed.FS

// RunMigrations applies pending Postgres migrations. Applied versions are
// tracked by goose, so each file runs once per database.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	// Closing this handle returns its connections to the pool; the pool stays open.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := fs.Sub(migrationFiles, "migrations/postgres")
	if err != nil {
		return err
	}
	return migrate(ctx, goose.DialectPostgres, db, fsys, logger)
}

// RunSQLiteMigrations applies pending SQLite migrations.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	fsys, err := fs.Sub(migrationFiles, "migrations/sqlite")
	if err != nil {
		return err
	}
	return migrate(ctx, goose.DialectSQLite3, db, fsys, logger)
}

func migrate(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS, logger *zap.Logger) error {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		logger.Info("applied migration",
			zap.String("dialect", string(dialect)),
			zap.String("file", res.Source.Path),
			zap.Duration("took", res.Duration))
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("migrations up to date", zap.String("dialect", string(dialect)), zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}
