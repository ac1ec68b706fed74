package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/cjs-api/internal/auth"
	"github.com/spec-kit/cjs-api/internal/domain"
	"github.com/spec-kit/cjs-api/internal/repository"
)

// CreateUserInput carries an already validated sign-up.
type CreateUserInput struct {
	Username string
	Email    string
	Secret   string
	Role     domain.Role
}

// UserService resolves and creates users against the store. It applies
// email normalization and never caches.
type UserService struct {
	users repository.UserRepository
	codec auth.CredentialCodec
}

// NewUserService builds the service.
func NewUserService(users repository.UserRepository, codec auth.CredentialCodec) *UserService {
	return &UserService{users: users, codec: codec}
}

// Create encodes the secret and inserts the user. A duplicate email surfaces
// as repository.ErrConflict straight from the store; there is no existence
// pre-check.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	credential, err := s.codec.Encode(in.Secret)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}

	role := in.Role
	if !role.Valid() {
		role = domain.RoleUser
	}

	return s.users.Insert(ctx, domain.UserCandidate{
		Username:   strings.TrimSpace(in.Username),
		EmailKey:   domain.NormalizeEmail(in.Email),
		Credential: credential,
		Role:       role,
	})
}

// ByEmail looks a user up by the normalized form of email.
func (s *UserService) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmailKey(ctx, domain.NormalizeEmail(email))
}

// ByID looks a user up by id.
func (s *UserService) ByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}
