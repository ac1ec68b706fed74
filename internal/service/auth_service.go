package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/cjs-api/internal/auth"
	"github.com/spec-kit/cjs-api/internal/domain"
	"github.com/spec-kit/cjs-api/internal/events"
	"github.com/spec-kit/cjs-api/internal/observability"
	"github.com/spec-kit/cjs-api/internal/repository"
	apperrors "github.com/spec-kit/cjs-api/pkg/util"
)

const invalidCredentialsMessage = "invalid email or password"

// timingSecret only feeds the placeholder credential that unknown emails are
// verified against.
const timingSecret = "placeholder-secret"

// SignUpRequest is an inbound registration. Role is accepted so that clients
// sending it do not fail, and is always ignored.
type SignUpRequest struct {
	Username string
	Email    string
	Secret   string
	Role     string
}

// SignInRequest is an inbound credential check.
type SignInRequest struct {
	Email  string
	Secret string
}

// AuthService coordinates sign-up, sign-in and user lookup. Every result it
// returns is a domain.PublicUser; credentials never leave it.
type AuthService struct {
	users       *UserService
	codec       auth.CredentialCodec
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	placeholder string
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Codec      auth.CredentialCodec
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	placeholder, err := deps.Codec.Encode(timingSecret)
	if err != nil {
		logger.Warn("unable to build placeholder credential", zap.Error(err))
	}
	return &AuthService{
		users:       NewUserService(deps.UserRepo, deps.Codec),
		codec:       deps.Codec,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		placeholder: placeholder,
	}
}

// SignUp validates the request and creates a USER account.
func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (domain.PublicUser, error) {
	if err := validateSignUp(req); err != nil {
		s.metrics.RecordAuthOutcome("signup", observability.OutcomeInvalid)
		return domain.PublicUser{}, err
	}

	user, err := s.users.Create(ctx, CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Secret:   req.Secret,
		Role:     domain.RoleUser,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			s.metrics.RecordAuthOutcome("signup", observability.OutcomeConflict)
			return domain.PublicUser{}, apperrors.NewConflict("email already in use", nil)
		case errors.Is(err, auth.ErrEmptySecret), errors.Is(err, auth.ErrSecretTooLong):
			s.metrics.RecordAuthOutcome("signup", observability.OutcomeInvalid)
			return domain.PublicUser{}, apperrors.NewValidationError("invalid sign up request", map[string]any{"password": err.Error()})
		default:
			s.metrics.RecordAuthOutcome("signup", observability.OutcomeUnavailable)
			return domain.PublicUser{}, apperrors.NewUnavailable(err)
		}
	}

	s.metrics.RecordAuthOutcome("signup", observability.OutcomeSuccess)
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{
		Username: user.Username,
		Email:    user.EmailKey,
		Role:     user.Role,
	})
	return user.Public(), nil
}

// SignIn verifies a credential pair. An unknown email and a wrong secret
// fail with the same error.
func (s *AuthService) SignIn(ctx context.Context, req SignInRequest) (domain.PublicUser, error) {
	details := map[string]any{}
	if strings.TrimSpace(req.Email) == "" {
		details["email"] = "email is required"
	}
	if req.Secret == "" {
		details["password"] = "password is required"
	}
	if len(details) > 0 {
		s.metrics.RecordAuthOutcome("signin", observability.OutcomeInvalid)
		return domain.PublicUser{}, apperrors.NewValidationError("invalid sign in request", details)
	}

	user, err := s.users.ByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Spend the same verification work as a known email would.
			s.codec.Verify(req.Secret, s.placeholder)
			s.metrics.RecordAuthOutcome("signin", observability.OutcomeRejected)
			return domain.PublicUser{}, apperrors.NewAuthenticationError(invalidCredentialsMessage)
		}
		s.metrics.RecordAuthOutcome("signin", observability.OutcomeUnavailable)
		return domain.PublicUser{}, apperrors.NewUnavailable(err)
	}

	if !s.codec.Verify(req.Secret, user.Credential) {
		s.metrics.RecordAuthOutcome("signin", observability.OutcomeRejected)
		return domain.PublicUser{}, apperrors.NewAuthenticationError(invalidCredentialsMessage)
	}

	s.metrics.RecordAuthOutcome("signin", observability.OutcomeSuccess)
	s.publish(ctx, events.EventUserSignedIn, user.ID, events.UserSignedInPayload{Email: user.EmailKey})
	return user.Public(), nil
}

// GetUserInfo resolves a user by id.
func (s *AuthService) GetUserInfo(ctx context.Context, id string) (domain.PublicUser, error) {
	user, err := s.users.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordAuthOutcome("userinfo", observability.OutcomeNotFound)
			return domain.PublicUser{}, apperrors.NewNotFound("user", nil)
		}
		s.metrics.RecordAuthOutcome("userinfo", observability.OutcomeUnavailable)
		return domain.PublicUser{}, apperrors.NewUnavailable(err)
	}
	s.metrics.RecordAuthOutcome("userinfo", observability.OutcomeSuccess)
	return user.Public(), nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, userID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func validateSignUp(req SignUpRequest) error {
	details := map[string]any{}

	if strings.TrimSpace(req.Username) == "" {
		details["username"] = "username is required"
	}

	switch email := strings.TrimSpace(req.Email); {
	case email == "":
		details["email"] = "email is required"
	case !isEmailAddress(email):
		details["email"] = "invalid email address"
	}

	switch {
	case req.Secret == "":
		details["password"] = "password is required"
	case domain.SecretLength(req.Secret) < domain.MinSecretLength:
		details["password"] = "password must be at least 6 characters long"
	case len(req.Secret) > domain.MaxSecretBytes:
		details["password"] = "password must be at most 72 bytes"
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sign up request", details)
	}
	return nil
}

// isEmailAddress accepts a bare RFC 5322 address, without display name or
// angle brackets.
func isEmailAddress(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
