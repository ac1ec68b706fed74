package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/cjs-api/internal/domain"
)

// memoryUserRepository keeps users in process memory. Used for local runs
// and tests; contents are lost on restart.
type memoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

// NewMemoryUserRepository returns an empty in-memory implementation.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *memoryUserRepository) Insert(_ context.Context, candidate domain.UserCandidate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[candidate.EmailKey]; exists {
		return nil, ErrConflict
	}

	user := domain.User{
		ID:         uuid.NewString(),
		Username:   candidate.Username,
		EmailKey:   candidate.EmailKey,
		Credential: candidate.Credential,
		Role:       candidate.Role,
		CreatedAt:  time.Now().UTC(),
	}
	r.byID[user.ID] = user
	r.byEmail[user.EmailKey] = user.ID
	return &user, nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) GetByEmailKey(_ context.Context, emailKey string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey]
	if !ok {
		return nil, ErrNotFound
	}
	user := r.byID[id]
	return &user, nil
}

func (r *memoryUserRepository) Ping(context.Context) error {
	return nil
}
