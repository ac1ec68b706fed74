package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/spec-kit/cjs-api/internal/domain"
)

type sqliteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository returns an embedded SQLite implementation. The
// users table must exist; see persistence.RunSQLiteMigrations.
func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

func (r *sqliteUserRepository) Insert(ctx context.Context, candidate domain.UserCandidate) (*domain.User, error) {
	const query = `
        INSERT INTO users (id, username, email_key, credential, role, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`

	user := &domain.User{
		ID:         uuid.NewString(),
		Username:   candidate.Username,
		EmailKey:   candidate.EmailKey,
		Credential: candidate.Credential,
		Role:       candidate.Role,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.EmailKey,
		user.Credential,
		string(user.Role),
		user.CreatedAt.UnixNano(),
	); err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, username, email_key, credential, role, created_at
        FROM users WHERE id = ?`
	return r.scanOne(ctx, query, id)
}

func (r *sqliteUserRepository) GetByEmailKey(ctx context.Context, emailKey string) (*domain.User, error) {
	const query = `
        SELECT id, username, email_key, credential, role, created_at
        FROM users WHERE email_key = ?`
	return r.scanOne(ctx, query, emailKey)
}

func (r *sqliteUserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *sqliteUserRepository) scanOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		user      domain.User
		role      string
		createdAt int64
	)
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.EmailKey,
		&user.Credential,
		&role,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	user.Role = domain.Role(role)
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
