package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/medvox/medvox-api/internal/config"
	"github.com/medvox/medvox-api/internal/handler"
	"github.com/medvox/medvox-api/internal/middleware"
	"github.com/medvox/medvox-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	OralSessionHandler *handler.OralSessionHandler
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.OralSessionHandler != nil {
		oral := api.Group("/oral", jwtMiddleware, middleware.RateLimit("oral", 30, time.Minute))
		deps.OralSessionHandler.Register(oral)
	}
}
