package dto

import "github.com/spec-kit/cjs-api/internal/domain"

// SignUpRequest payload for new users. Role is read so that it can be
// ignored explicitly; accounts are always created as USER.
type SignUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// SignInRequest payload for sign-in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserEnvelope wraps a public user in the standard data envelope.
type UserEnvelope struct {
	Data UserData `json:"data"`
}

// UserData holds the user of a response.
type UserData struct {
	User domain.PublicUser `json:"user"`
}

// NewUserEnvelope builds the response body for a user.
func NewUserEnvelope(user domain.PublicUser) UserEnvelope {
	return UserEnvelope{Data: UserData{User: user}}
}
