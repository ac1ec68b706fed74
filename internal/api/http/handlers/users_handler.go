package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/cjs-api/internal/api/dto"
	"github.com/spec-kit/cjs-api/internal/service"
	apperrors "github.com/spec-kit/cjs-api/pkg/util"
)

// UsersHandler exposes sign-up, sign-in and user lookup.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// SignUp handles POST /auth/signup.
func (h *UsersHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.SignUp(c.UserContext(), service.SignUpRequest{
		Username: req.Username,
		Email:    req.Email,
		Secret:   req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.NewUserEnvelope(user))
}

// SignIn handles POST /auth/signin.
func (h *UsersHandler) SignIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.SignIn(c.UserContext(), service.SignInRequest{
		Email:  req.Email,
		Secret: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(dto.NewUserEnvelope(user))
}

// GetUser handles GET /users/:id.
func (h *UsersHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.auth.GetUserInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserEnvelope(user))
}
