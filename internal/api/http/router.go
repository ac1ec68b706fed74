package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/cjs-api/internal/api/http/handlers"
	"github.com/spec-kit/cjs-api/internal/config"
	"github.com/spec-kit/cjs-api/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Users     *handlers.UsersHandler
	Metrics   *observability.Metrics
	RateLimit config.RateLimitConfig
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Users.SignUp)
	authGroup.Post("/signin", RateLimitByIP(cfg.RateLimit.SignInPerMinute, cfg.RateLimit.SignInBurst), cfg.Users.SignIn)

	app.Get("/users/:id", cfg.Users.GetUser)
}
