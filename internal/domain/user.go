package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Role tags an account with its platform role.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the identity record of a platform account.
type User struct {
	ID         string
	Username   string
	EmailKey   string
	Credential string `json:"-"`
	Role       Role
	CreatedAt  time.Time
}

// UserCandidate carries the fields of a user that is about to be inserted.
// ID and CreatedAt are assigned by the store.
type UserCandidate struct {
	Username   string
	EmailKey   string
	Credential string
	Role       Role
}

// PublicUser is the only user shape that leaves the service boundary.
type PublicUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Public projects the user onto its outward fields.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Email:    u.EmailKey,
		Username: u.Username,
		Role:     u.Role,
	}
}

// NormalizeEmail returns the lookup key for an email address: surrounding
// whitespace trimmed, NFC composed and case folded.
func NormalizeEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	// Casers keep state and must not be shared between goroutines.
	return cases.Fold().String(norm.NFC.String(trimmed))
}
