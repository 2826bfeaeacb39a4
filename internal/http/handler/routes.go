package handler

import (
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credserver/internal/service"
)

// Dependencies are the collaborators the routes need. DB and Gatherer are optional.
type Dependencies struct {
	DB          *sql.DB
	Credentials service.CredentialService
	Refresher   service.RefreshService
	Audit       service.AuditService
	APIKey      string
	Gatherer    prometheus.Gatherer
	Now         func() time.Time
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	auth := RequireAPIKey(deps.APIKey)

	app.Get("/", Root())
	app.Get("/healthz", LivenessProbe())
	app.Get("/health", HealthCheck(deps.DB, deps.Credentials))

	app.Get("/oauth_creds.json", auth, GetCredentials(deps.Credentials))
	app.Get("/status", auth, GetStatus(deps.Credentials, now))
	app.Post("/refresh", auth, TriggerRefresh(deps.Refresher))
	app.Get("/refreshes", auth, ListRefreshes(deps.Audit))

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	app.Get("/swagger/*", SwaggerUI())
}
