package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/cjs-api/internal/domain"
)

var (
	// ErrEmptySecret is returned when encoding an empty secret.
	ErrEmptySecret = errors.New("secret is empty")
	// ErrSecretTooLong is returned for secrets bcrypt would truncate.
	ErrSecretTooLong = errors.New("secret exceeds 72 bytes")
)

// CredentialCodec turns secrets into one-way credentials and verifies them.
type CredentialCodec interface {
	Encode(secret string) (string, error)
	Verify(secret, credential string) bool
}

// BcryptCodec is a CredentialCodec backed by bcrypt. Each encoding uses a
// fresh random salt.
type BcryptCodec struct {
	cost int
}

// NewBcryptCodec builds a codec with the configured cost, clamped to
// bcrypt's accepted range.
func NewBcryptCodec(cost int) *BcryptCodec {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptCodec{cost: cost}
}

// Encode hashes a plaintext secret.
func (c *BcryptCodec) Encode(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > domain.MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether secret produced credential. The comparison is
// constant time; malformed credentials never verify.
//
// bcrypt only reads the first 72 bytes, so a longer secret could match a
// credential encoded from its prefix. Encode never accepts such a secret,
// so it is rejected here after the comparison has run.
func (c *BcryptCodec) Verify(secret, credential string) bool {
	matched := bcrypt.CompareHashAndPassword([]byte(credential), []byte(secret)) == nil
	return matched && len(secret) <= domain.MaxSecretBytes
}
