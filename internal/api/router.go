// Package api assembles the HTTP and websocket surface of the dashboard.
package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/api/handlers"
	"github.com/ddx-dashboard/backend/internal/metrics"
	"github.com/ddx-dashboard/backend/internal/middleware/auth"
	"github.com/ddx-dashboard/backend/internal/middleware/ratelimit"
	"github.com/ddx-dashboard/backend/internal/middleware/requestlog"
	"github.com/ddx-dashboard/backend/internal/middleware/security"
	"github.com/ddx-dashboard/backend/internal/middleware/validation"
	"github.com/ddx-dashboard/backend/pkg/config"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

type Dependencies struct {
	Reports handlers.ReportService
	// Ready lists the dependencies the readiness probe pings, by name.
	Ready map[string]handlers.Pinger
}

// Server bundles the fiber app with the background resources it owns.
type Server struct {
	App     *fiber.App
	limiter *ratelimit.RateLimiter
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	log := logger.Named("http")

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestlog.Middleware(log))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, If-None-Match",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "ETag, X-Request-ID",
	}))

	healthHandler := handlers.NewHealthHandler(deps.Ready)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Reports)
	notesHandler := handlers.NewNotesHandler()
	wsHandler := handlers.NewWebSocketHandler(deps.Reports, cfg.Analytics.LivePollInterval)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		KeyFunc:              auth.UserID,
		Logger:               log,
	})

	authenticate, instructorOnly := accessControl(cfg, log)

	api.Use(validation.Middleware(validation.Config{
		MaxBodyBytes:     cfg.Server.BodyLimit,
		ScreenedPrefixes: []string{"/api/v1/notes"},
		Logger:           log,
	}))

	cases := api.Group("/cases/:caseId", authenticate, limiter.Middleware(), instructorOnly)
	cases.Get("/analytics", analyticsHandler.GetReport)
	cases.Post("/analytics/refresh", analyticsHandler.RefreshReport)

	api.Post("/notes/topic-vote/encode", authenticate, limiter.Middleware(), notesHandler.EncodeTopicVote)

	app.Get("/ws/cases/:caseId/analytics",
		authenticate,
		instructorOnly,
		wsHandler.Upgrade,
		websocket.New(wsHandler.HandleConnection),
	)

	return &Server{App: app, limiter: limiter}
}

// accessControl returns the authentication and instructor-role handlers.
// Without a signing key both are pass-through; cmd/api refuses to start that
// way outside development.
func accessControl(cfg *config.Config, log *zap.Logger) (fiber.Handler, fiber.Handler) {
	if cfg.Auth.JWTSigningKey == "" {
		log.Warn("JWT signing key not set, authentication disabled")
		pass := func(c *fiber.Ctx) error { return c.Next() }
		return pass, pass
	}

	authenticate := auth.Middleware(auth.Config{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.Issuer,
		Logger:     log,
	})
	return authenticate, auth.RequireRole(cfg.Auth.Roles...)
}

// errorHandler answers errors that escape handlers, such as unknown routes
// or a rejected upgrade, in the API's JSON shape.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

func (s *Server) Shutdown() error {
	s.limiter.Stop()
	return s.App.Shutdown()
}
