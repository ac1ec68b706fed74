package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/cjs-api/internal/domain"
)

// insertUserScript claims the email key and writes the record in one atomic
// step. KEYS[1] is the email index key, KEYS[2] the record key.
var insertUserScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2],
  'id', ARGV[1],
  'username', ARGV[2],
  'email_key', ARGV[3],
  'credential', ARGV[4],
  'role', ARGV[5],
  'created_at', ARGV[6])
return 1
`)

type redisUserRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisUserRepository returns a Redis implementation. Keys are namespaced
// under prefix, wrapped as a hash tag so the insert script's keys share one
// cluster slot.
func NewRedisUserRepository(client redis.UniversalClient, prefix string) UserRepository {
	if prefix == "" {
		prefix = "cjs"
	}
	return &redisUserRepository{client: client, prefix: prefix}
}

func (r *redisUserRepository) emailKey(emailKey string) string {
	return "{" + r.prefix + "}:users:email:" + emailKey
}

func (r *redisUserRepository) idKey(id string) string {
	return "{" + r.prefix + "}:users:id:" + id
}

func (r *redisUserRepository) Insert(ctx context.Context, candidate domain.UserCandidate) (*domain.User, error) {
	user := &domain.User{
		ID:         uuid.NewString(),
		Username:   candidate.Username,
		EmailKey:   candidate.EmailKey,
		Credential: candidate.Credential,
		Role:       candidate.Role,
		CreatedAt:  time.Now().UTC(),
	}

	inserted, err := insertUserScript.Run(ctx, r.client,
		[]string{r.emailKey(user.EmailKey), r.idKey(user.ID)},
		user.ID,
		user.Username,
		user.EmailKey,
		user.Credential,
		string(user.Role),
		user.CreatedAt.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if inserted == 0 {
		return nil, ErrConflict
	}
	return user, nil
}

func (r *redisUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	fields, err := r.client.HGetAll(ctx, r.idKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return userFromHash(fields)
}

func (r *redisUserRepository) GetByEmailKey(ctx context.Context, emailKey string) (*domain.User, error) {
	id, err := r.client.Get(ctx, r.emailKey(emailKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *redisUserRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func userFromHash(fields map[string]string) (*domain.User, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode user %s: %w", fields["id"], err)
	}
	return &domain.User{
		ID:         fields["id"],
		Username:   fields["username"],
		EmailKey:   fields["email_key"],
		Credential: fields["credential"],
		Role:       domain.Role(fields["role"]),
		CreatedAt:  createdAt.UTC(),
	}, nil
}
