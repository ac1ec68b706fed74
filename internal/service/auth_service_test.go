package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/cjs-api/internal/auth"
	"github.com/spec-kit/cjs-api/internal/config"
	"github.com/spec-kit/cjs-api/internal/domain"
	"github.com/spec-kit/cjs-api/internal/events"
	"github.com/spec-kit/cjs-api/internal/observability"
	"github.com/spec-kit/cjs-api/internal/repository"
	apperrors "github.com/spec-kit/cjs-api/pkg/util"
)

func newAuthService(t *testing.T, repo repository.UserRepository) *AuthService {
	t.Helper()
	return NewAuthService(AuthDependencies{
		UserRepo: repo,
		Codec:    testCodec(),
		Metrics:  observability.NewMetrics(),
	})
}

func domainError(t *testing.T, err error) *apperrors.DomainError {
	t.Helper()
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %v", err)
	return de
}

func TestAuthService_Scenario(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()

	alice, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, alice.Role)
	assert.Equal(t, "a@x.com", alice.Email)
	assert.Equal(t, "alice", alice.Username)
	assert.NotEmpty(t, alice.ID)

	_, err = svc.SignUp(ctx, SignUpRequest{Username: "alice2", Email: "a@x.com", Secret: "secret2"})
	require.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "email already in use", domainError(t, err).Message)

	_, err = svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "wrong"})
	require.True(t, apperrors.IsAuthentication(err))

	signedIn, err := svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, alice, signedIn)
}

func TestAuthService_SignUpShortSecret(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())

	_, err := svc.SignUp(context.Background(), SignUpRequest{Username: "bob", Email: "b@x.com", Secret: "12345"})
	require.True(t, apperrors.IsValidation(err))
	assert.Contains(t, domainError(t, err).Details, "password")
}

func TestAuthService_SignUpValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   SignUpRequest
		field string
	}{
		{"missing username", SignUpRequest{Email: "a@x.com", Secret: "secret1"}, "username"},
		{"blank username", SignUpRequest{Username: "   ", Email: "a@x.com", Secret: "secret1"}, "username"},
		{"missing email", SignUpRequest{Username: "a", Secret: "secret1"}, "email"},
		{"malformed email", SignUpRequest{Username: "a", Email: "not-an-email", Secret: "secret1"}, "email"},
		{"display name email", SignUpRequest{Username: "a", Email: "Alice <a@x.com>", Secret: "secret1"}, "email"},
		{"missing secret", SignUpRequest{Username: "a", Email: "a@x.com"}, "password"},
		{"five characters", SignUpRequest{Username: "a", Email: "a@x.com", Secret: "abcde"}, "password"},
		{"over 72 bytes", SignUpRequest{Username: "a", Email: "a@x.com", Secret: strings.Repeat("a", 73)}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &countingRepo{UserRepository: repository.NewMemoryUserRepository()}
			svc := newAuthService(t, repo)

			_, err := svc.SignUp(context.Background(), tt.req)
			require.True(t, apperrors.IsValidation(err), "got %v", err)
			assert.Contains(t, domainError(t, err).Details, tt.field)
			assert.Zero(t, repo.inserts.Load(), "invalid requests never reach the store")
		})
	}
}

func TestAuthService_SignUpAcceptsBoundaries(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Username: "six", Email: "six@x.com", Secret: "abcdef"})
	require.NoError(t, err)

	// Six characters, more than six bytes.
	_, err = svc.SignUp(ctx, SignUpRequest{Username: "runes", Email: "runes@x.com", Secret: "пароль"})
	require.NoError(t, err)
}

func TestAuthService_SignUpForcesUserRole(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Username: "eve", Email: "eve@x.com", Secret: "secret1", Role: "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)

	info, err := svc.GetUserInfo(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, info.Role)
}

func TestAuthService_EmailNormalizationPolicy(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "  Alice@Example.COM ", Secret: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = svc.SignUp(ctx, SignUpRequest{Username: "other", Email: "ALICE@example.com", Secret: "secret1"})
	require.True(t, apperrors.IsConflict(err))

	signedIn, err := svc.SignIn(ctx, SignInRequest{Email: "aLiCe@eXample.com", Secret: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, signedIn.ID)

	_, err = svc.SignUp(ctx, SignUpRequest{Username: "s", Email: "stra\u00dfe@x.com", Secret: "secret1"})
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, SignUpRequest{Username: "s2", Email: "strasse@x.com", Secret: "secret1"})
	require.True(t, apperrors.IsConflict(err), "folded addresses collide")
}

func TestAuthService_ConcurrentSignUpSingleWinner(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()
	const attempts = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []domain.PublicUser
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// Differently cased spellings of one normalized email.
			email := "race@x.com"
			if i%2 == 1 {
				email = "RACE@X.com"
			}
			user, err := svc.SignUp(ctx, SignUpRequest{
				Username: fmt.Sprintf("racer-%d", i),
				Email:    email,
				Secret:   "secret1",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, user)
			case apperrors.IsConflict(err):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	assert.Equal(t, attempts-1, conflicts)
}

func TestAuthService_EnumerationResistance(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)

	_, unknownErr := svc.SignIn(ctx, SignInRequest{Email: "nobody@x.com", Secret: "secret1"})
	_, wrongErr := svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "wrong-secret"})

	unknown := domainError(t, unknownErr)
	wrong := domainError(t, wrongErr)
	assert.Equal(t, apperrors.CodeAuthentication, unknown.Code)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Message, wrong.Message)
	assert.Equal(t, unknown.HTTPStatus, wrong.HTTPStatus)
	assert.Equal(t, unknown.Details, wrong.Details)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	assert.Equal(t, "invalid email or password", unknown.Message)
}

type verifyCountingCodec struct {
	auth.CredentialCodec
	verifies int
}

func (c *verifyCountingCodec) Verify(secret, credential string) bool {
	c.verifies++
	return c.CredentialCodec.Verify(secret, credential)
}

func TestAuthService_SignInRejectsSecretExtendedPastBcryptLimit(t *testing.T) {
	codec := &verifyCountingCodec{CredentialCodec: testCodec()}
	svc := NewAuthService(AuthDependencies{UserRepo: repository.NewMemoryUserRepository(), Codec: codec})
	ctx := context.Background()

	secret := strings.Repeat("a", domain.MaxSecretBytes)
	_, err := svc.SignUp(ctx, SignUpRequest{Username: "long", Email: "long@x.com", Secret: secret})
	require.NoError(t, err)

	_, err = svc.SignIn(ctx, SignInRequest{Email: "long@x.com", Secret: secret})
	require.NoError(t, err)

	codec.verifies = 0
	_, err = svc.SignIn(ctx, SignInRequest{Email: "long@x.com", Secret: secret + "EXTRA-NOT-THE-SECRET"})
	require.True(t, apperrors.IsAuthentication(err))
	assert.Equal(t, invalidCredentialsMessage, domainError(t, err).Message)
	assert.Equal(t, 1, codec.verifies)

	codec.verifies = 0
	_, err = svc.SignIn(ctx, SignInRequest{Email: "nobody@x.com", Secret: secret + "EXTRA-NOT-THE-SECRET"})
	require.True(t, apperrors.IsAuthentication(err))
	assert.Equal(t, 1, codec.verifies, "unknown emails still pay for one comparison")
}

func TestAuthService_SignInValidation(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())

	_, err := svc.SignIn(context.Background(), SignInRequest{Secret: "secret1"})
	require.True(t, apperrors.IsValidation(err))

	_, err = svc.SignIn(context.Background(), SignInRequest{Email: "a@x.com"})
	require.True(t, apperrors.IsValidation(err))
}

func TestAuthService_CredentialNeverLeaves(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	svc := newAuthService(t, repo)
	ctx := context.Background()

	signedUp, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)
	signedIn, err := svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)
	info, err := svc.GetUserInfo(ctx, signedUp.ID)
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, signedUp.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.Credential)

	for _, out := range []domain.PublicUser{signedUp, signedIn, info} {
		encoded, err := json.Marshal(out)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), stored.Credential)
		assert.NotContains(t, string(encoded), "secret1")
		assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"email":"a@x.com","username":"alice","role":"USER"}`, signedUp.ID), string(encoded))
	}
}

func TestAuthService_GetUserInfo(t *testing.T) {
	svc := newAuthService(t, repository.NewMemoryUserRepository())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)

	first, err := svc.GetUserInfo(ctx, user.ID)
	require.NoError(t, err)
	second, err := svc.GetUserInfo(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, user, first)

	_, err = svc.GetUserInfo(ctx, "missing")
	require.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, "user not found", domainError(t, err).Message)
}

func TestAuthService_StoreFaultsAreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	svc := newAuthService(t, failingRepo{err: cause})
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.True(t, apperrors.IsUnavailable(err))
	assert.ErrorIs(t, err, cause)

	_, err = svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "secret1"})
	require.True(t, apperrors.IsUnavailable(err))
	assert.False(t, apperrors.IsAuthentication(err))

	_, err = svc.GetUserInfo(ctx, "some-id")
	require.True(t, apperrors.IsUnavailable(err))
	assert.False(t, apperrors.IsNotFound(err))
}

func TestAuthService_PublishesEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	var (
		mu       sync.Mutex
		received []events.Event
	)
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	}
	dispatcher.Subscribe(events.EventUserRegistered, record)
	dispatcher.Subscribe(events.EventUserSignedIn, record)
	dispatcher.Subscribe(events.EventUserSignedIn, func(context.Context, events.Event) error {
		return errors.New("handler down")
	})

	svc := NewAuthService(AuthDependencies{
		UserRepo:   repository.NewMemoryUserRepository(),
		Codec:      testCodec(),
		Dispatcher: dispatcher,
	})
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)
	_, err = svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err, "a failing handler does not fail the sign-in")
	_, err = svc.SignIn(ctx, SignInRequest{Email: "a@x.com", Secret: "nope"})
	require.Error(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, events.EventUserRegistered, received[0].Type)
	assert.Equal(t, user.ID, received[0].UserID)
	assert.Equal(t, events.UserRegisteredPayload{Username: "alice", Email: "a@x.com", Role: domain.RoleUser}, received[0].Payload)
	assert.Equal(t, events.EventUserSignedIn, received[1].Type)
}

func TestNotificationService_WelcomeEmail(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{EmailFrom: "noreply@x.com"}).RegisterHandlers()

	svc := NewAuthService(AuthDependencies{
		UserRepo:   repository.NewMemoryUserRepository(),
		Codec:      testCodec(),
		Dispatcher: dispatcher,
	})
	_, err := svc.SignUp(context.Background(), SignUpRequest{Username: "alice", Email: "a@x.com", Secret: "secret1"})
	require.NoError(t, err)

	require.Equal(t, 1, logs.FilterMessage("UserRegistered").Len())
	emails := logs.FilterMessage("sendWelcomeEmailStub").All()
	require.Len(t, emails, 1)
	assert.Equal(t, "a@x.com", emails[0].ContextMap()["to"])
	assert.Zero(t, logs.FilterMessage("sendWebhookNotificationStub").Len(), "no webhook configured")
}
