package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"

	handlers "credserver/internal/http/handler"
	"credserver/internal/http/middleware"
	"credserver/internal/logger"
	"credserver/internal/service"
)

// errPreforkAsInit is returned when prefork is requested from PID 1. Fiber
// children exit as soon as their parent pid is 1, so they would never serve.
var errPreforkAsInit = errors.New("prefork cannot run as PID 1; start credserver under an init such as tini")

func checkPrefork(prefork bool, pid int) error {
	if prefork && pid == 1 {
		return errPreforkAsInit
	}
	return nil
}

// newServer builds the Fiber app with middleware and routes wired to a.
func newServer(a *appContext, refresher service.RefreshService, prefork bool) (*fiber.App, error) {
	if err := checkPrefork(prefork, os.Getpid()); err != nil {
		return nil, err
	}
	prom, err := middleware.NewPrometheusMiddleware(a.registry, "/healthz")
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "credserver",
		ErrorHandler:          handlers.ErrorHandler(),
		Prefork:               prefork,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/healthz" || c.Path() == "/metrics"
	})))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger.Component(a.log, "http")))
	app.Use(prom.Handler())

	handlers.RegisterRoutes(app, handlers.Dependencies{
		DB:          a.db,
		Credentials: service.NewCredentialService(a.store),
		Refresher:   refresher,
		Audit:       service.NewAuditService(a.events),
		APIKey:      a.cfg.Server.APIKey,
		Gatherer:    a.registry,
	})
	return app, nil
}

// listen serves app on addr until ctx is done, then shuts it down gracefully.
func listen(ctx context.Context, a *appContext, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	if !fiber.IsChild() {
		a.log.Info().Str("addr", addr).Bool("prefork", app.Config().Prefork).Msg("http server listening")
	}
	if a.cfg.Server.APIKey == "" {
		a.log.Warn().Msg("PROXY_API_KEY is not set, protected routes will answer 500")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down http server")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
