package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/cjs-api/internal/domain"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when an insert collides with an existing email key.
	ErrConflict = errors.New("email key already exists")
)

// UserRepository defines persistence access for platform users.
//
// Insert must detect a duplicate email key atomically, using the backend's
// own uniqueness mechanism: concurrent inserts of one key yield exactly one
// success and ErrConflict for the rest.
type UserRepository interface {
	Insert(ctx context.Context, candidate domain.UserCandidate) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmailKey(ctx context.Context, emailKey string) (*domain.User, error)
	Ping(ctx context.Context) error
}

const pgUniqueViolation = "23505"

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Insert(ctx context.Context, candidate domain.UserCandidate) (*domain.User, error) {
	const query = `
        INSERT INTO users (username, email_key, credential, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id::text, created_at`

	user := &domain.User{
		Username:   candidate.Username,
		EmailKey:   candidate.EmailKey,
		Credential: candidate.Credential,
		Role:       candidate.Role,
	}
	err := r.pool.QueryRow(ctx, query,
		candidate.Username,
		candidate.EmailKey,
		candidate.Credential,
		string(candidate.Role),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	// Ids are uuids; anything else cannot match a row.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	const query = `
        SELECT id::text, username, email_key, credential, role, created_at
        FROM users WHERE id=$1`

	return r.scanOne(ctx, query, id)
}

func (r *userRepository) GetByEmailKey(ctx context.Context, emailKey string) (*domain.User, error) {
	const query = `
        SELECT id::text, username, email_key, credential, role, created_at
        FROM users WHERE email_key=$1`

	return r.scanOne(ctx, query, emailKey)
}

func (r *userRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func (r *userRepository) scanOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.EmailKey,
		&user.Credential,
		&role,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	user.Role = domain.Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
