package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"credserver/internal/config"
	"credserver/internal/database"
	"credserver/internal/database/migration"
	"credserver/internal/logger"
	"credserver/internal/oauth"
	"credserver/internal/repository"
	"credserver/internal/repository/postgres"
	"credserver/internal/service"
	"credserver/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// appContext holds the collaborators shared by every command.
type appContext struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	store    storage.Store
	cached   *storage.CachedStore
	db       *sql.DB
	events   repository.RefreshEventRepository
	registry *prometheus.Registry
	metrics  *service.Metrics
}

func newAppContext(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*appContext, error) {
	a := &appContext{
		cfg:      cfg,
		log:      log,
		events:   repository.NopRefreshEventRepository{},
		registry: prometheus.NewRegistry(),
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := service.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = metrics

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.Database.Enabled() {
		db, err := database.OpenAudit(ctx, cfg.Database, logger.Component(log, "database"))
		if err != nil {
			return nil, err
		}
		if err := migration.EnsureMigrated(ctx, db, logger.Component(log, "migration")); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		a.events = postgres.NewRefreshEventPostgres(db)
	}

	return a, nil
}

func (a *appContext) openStore(ctx context.Context) error {
	switch a.cfg.Credentials.Backend {
	case "s3":
		s, err := storage.NewMinIO(ctx, a.cfg.MinIO, a.cfg.Credentials.ObjectKey)
		if err != nil {
			return fmt.Errorf("open object store: %w", err)
		}
		a.store = s
		a.log.Info().Str("backend", "s3").Str("bucket", a.cfg.MinIO.Bucket).Str("key", a.cfg.Credentials.ObjectKey).Msg("credential store ready")
	case "file":
		var s storage.Store = storage.NewFileStore(a.cfg.Credentials.File)
		if a.cfg.Credentials.Watch {
			a.cached = storage.NewCachedStore(s)
			s = a.cached
		}
		a.store = s
		a.log.Info().Str("backend", "file").Str("path", a.cfg.Credentials.File).Bool("watch", a.cfg.Credentials.Watch).Msg("credential store ready")
	default:
		return fmt.Errorf("unknown credentials backend %q", a.cfg.Credentials.Backend)
	}
	return nil
}

// watchStore invalidates the read cache whenever another process rewrites the file.
// Without a working watcher the cache is turned off so readers never see stale tokens.
func (a *appContext) watchStore(ctx context.Context) {
	if a.cached == nil {
		return
	}
	log := logger.Component(a.log, "watcher")
	if err := storage.Watch(ctx, a.cfg.Credentials.File, storage.DefaultDebounce, log, a.cached.Invalidate); err != nil {
		log.Error().Err(err).Msg("credential watcher unavailable, serving uncached")
		a.cached.Disable()
	}
}

func (a *appContext) refresher() service.RefreshService {
	up := a.cfg.Upstream
	client := oauth.NewClient(oauth.Config{
		TokenURL:     up.TokenURL,
		ClientID:     up.ClientID,
		ClientSecret: up.ClientSecret,
		Timeout:      up.RequestTimeout,
	})
	return service.NewRefreshService(a.store, client, a.events, a.metrics, a.log, service.RefreshOptions{
		InitialAccessToken:  up.InitialAccessToken,
		InitialRefreshToken: up.InitialRefreshToken,
		ResourceURL:         up.ResourceURL,
		Interval:            up.RefreshInterval,
	})
}

func (a *appContext) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close database")
		}
	}
}
