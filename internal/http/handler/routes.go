package handler

import (
	"database/sql"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mediagate/internal/http/middleware"
	"mediagate/internal/model"
	"mediagate/internal/service"
)

// Tokens is the token surface the HTTP layer needs.
type Tokens interface {
	middleware.SessionValidator
	GrantIssuer
	GrantValidator
}

// Deps carries everything RegisterRoutes wires into handlers.
type Deps struct {
	DB           *sql.DB
	Media        service.MediaService
	Accounts     service.AccountService
	Tokens       Tokens
	Log          *slog.Logger
	RequireGrant bool
	// Metrics may be nil.
	Metrics StreamObserver
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	var db Pinger
	if d.DB != nil {
		db = d.DB
	}

	app.Get("/", Root())
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", Signup(d.Accounts, d.Log))
	authGroup.Post("/login", Login(d.Accounts, d.Log))

	// Admins may use the viewer routes too.
	viewer := middleware.Authenticate(d.Tokens, model.RoleUser, model.RoleAdmin)
	media := app.Group("/media")
	media.Get("/", viewer, ListCatalog(d.Media, d.Log))
	media.Post("/:id/verify", viewer, VerifyMedia(d.Media, d.Tokens, d.Log))
	media.Get("/:id/stream", viewer, StreamMedia(d.Media, StreamOptions{
		RequireGrant: d.RequireGrant,
		Grants:       d.Tokens,
		Metrics:      d.Metrics,
	}, d.Log))

	adminOnly := middleware.Authenticate(d.Tokens, model.RoleAdmin)
	admin := app.Group("/admin")
	admin.Post("/login", AdminLogin(d.Accounts, d.Log))
	admin.Post("/upload", adminOnly, UploadMedia(d.Media, d.Log))
	admin.Get("/media", adminOnly, ListAdminMedia(d.Media, d.Log))
	admin.Put("/media/:id", adminOnly, UpdateMedia(d.Media, d.Log))
	admin.Delete("/media/:id", adminOnly, DeleteMedia(d.Media, d.Log))
}

// IsStreamRoute reports whether path is a media stream. Tracing middleware
// that captures response bodies must skip these.
func IsStreamRoute(path string) bool {
	return strings.HasPrefix(path, "/media/") && strings.HasSuffix(path, "/stream")
}
