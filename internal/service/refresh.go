package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"credserver/internal/model"
	"credserver/internal/oauth"
	"credserver/internal/repository"
	"credserver/internal/storage"
)

var (
	ErrMissingInitialCredentials = errors.New("initial credentials not found in environment (QWEN_ACCESS_TOKEN, QWEN_REFRESH_TOKEN)")
	ErrNoCredentials             = errors.New("no credentials to refresh")
	ErrRefreshFailed             = errors.New("token refresh failed")
)

// refreshTokenType is written into every refreshed document.
const refreshTokenType = "Bearer"

var tracer = otel.Tracer("credserver/internal/service")

// RefreshOptions configures the refresher.
type RefreshOptions struct {
	InitialAccessToken  string
	InitialRefreshToken string
	ResourceURL         string
	Interval            time.Duration
}

// RefreshService keeps the stored credential document fresh.
type RefreshService interface {
	// Initialize seeds the document from the initial tokens when none exists.
	Initialize(ctx context.Context) error

	// RefreshOnce performs a single refresh and returns the recorded event.
	// The stored document is left untouched on any failure.
	RefreshOnce(ctx context.Context) (*model.RefreshEvent, error)

	// Run refreshes immediately and then once per interval until ctx is done.
	Run(ctx context.Context) error
}

type refreshService struct {
	store   storage.Store
	tokens  oauth.TokenRefresher
	events  repository.RefreshEventRepository
	metrics *Metrics
	log     zerolog.Logger
	opts    RefreshOptions
	now     func() time.Time

	// mu serializes refreshes so an on-demand refresh never races the loop
	// with the same single-use refresh token.
	mu sync.Mutex
}

// NewRefreshService constructs a new RefreshService. events may be a repository.NopRefreshEventRepository
// and metrics may be nil.
func NewRefreshService(
	store storage.Store,
	tokens oauth.TokenRefresher,
	events repository.RefreshEventRepository,
	metrics *Metrics,
	log zerolog.Logger,
	opts RefreshOptions,
) RefreshService {
	if events == nil {
		events = repository.NopRefreshEventRepository{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &refreshService{
		store:   store,
		tokens:  tokens,
		events:  events,
		metrics: metrics,
		log:     log.With().Str("component", "refresher").Logger(),
		opts:    opts,
		now:     time.Now,
	}
}

func (s *refreshService) Initialize(ctx context.Context) error {
	exists, err := s.store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check credentials: %w", err)
	}
	if exists {
		s.log.Debug().Msg("credentials already present, skipping initialization")
		return nil
	}

	if s.opts.InitialAccessToken == "" || s.opts.InitialRefreshToken == "" {
		s.log.Error().Msg("initial credentials not found in environment")
		return ErrMissingInitialCredentials
	}

	creds := &model.Credentials{
		AccessToken:  s.opts.InitialAccessToken,
		RefreshToken: s.opts.InitialRefreshToken,
		ExpiryDate:   0,
	}
	if err := s.store.Save(ctx, creds); err != nil {
		return fmt.Errorf("save initial credentials: %w", err)
	}
	s.log.Info().Msg("credentials initialized from environment")
	return nil
}

func (s *refreshService) RefreshOnce(ctx context.Context) (*model.RefreshEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "credentials.refresh", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := s.now()
	ev, err := s.refresh(ctx, start)
	ev.ID = uuid.NewString()
	ev.CreatedAt = start.UTC()
	ev.DurationMs = max(s.now().Sub(start).Milliseconds(), 0)

	span.SetAttributes(
		attribute.String("refresh.id", ev.ID),
		attribute.String("refresh.status", string(ev.Status)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ev.Status))
	}

	s.metrics.observe(ev)
	s.record(ctx, ev)

	switch ev.Status {
	case model.RefreshSuccess:
		s.log.Info().
			Int64("expiry_date", ev.ExpiryDate).
			Time("expires_at", time.Unix(ev.ExpiryDate, 0)).
			Int64("duration_ms", ev.DurationMs).
			Msg("token refreshed")
	case model.RefreshSkipped:
		s.log.Warn().Err(err).Msg("refresh skipped")
	default:
		s.log.Error().Err(err).Int64("duration_ms", ev.DurationMs).Msg("refresh failed")
	}
	return ev, err
}

func (s *refreshService) refresh(ctx context.Context, now time.Time) (*model.RefreshEvent, error) {
	current, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrCorrupt) {
			return &model.RefreshEvent{Status: model.RefreshSkipped, Error: ErrNoCredentials.Error()}, ErrNoCredentials
		}
		err = fmt.Errorf("load credentials: %w", err)
		return failed(err), err
	}

	tr, err := s.tokens.Refresh(ctx, current.RefreshToken)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		return failed(err), err
	}

	next := buildCredentials(current, tr, now, s.opts.ResourceURL)
	if err := s.store.Save(ctx, next); err != nil {
		err = fmt.Errorf("save credentials: %w", err)
		return failed(err), err
	}

	return &model.RefreshEvent{Status: model.RefreshSuccess, ExpiryDate: next.ExpiryDate}, nil
}

func (s *refreshService) record(ctx context.Context, ev *model.RefreshEvent) {
	// The audit write must not be cancelled together with a failed refresh.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.Create(actx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to record refresh event")
	}
}

func (s *refreshService) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("refresher stopped")
			return nil
		case <-timer.C:
		}

		s.log.Debug().Msg("starting refresh cycle")
		_, _ = s.RefreshOnce(ctx)

		s.log.Info().Dur("interval", s.opts.Interval).Msg("sleeping until next refresh")
		timer.Reset(s.opts.Interval)
	}
}

func failed(err error) *model.RefreshEvent {
	return &model.RefreshEvent{Status: model.RefreshFailed, Error: err.Error()}
}

// buildCredentials derives the next document from the previous one and a token response.
// A missing refresh token keeps the previous one and a missing expires_in means one hour.
func buildCredentials(prev *model.Credentials, tr *model.TokenResponse, now time.Time, resourceURL string) *model.Credentials {
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = model.DefaultExpiresIn
	}
	refreshToken := tr.RefreshToken
	if refreshToken == "" {
		refreshToken = prev.RefreshToken
	}
	return &model.Credentials{
		AccessToken:  tr.AccessToken,
		RefreshToken: refreshToken,
		ExpiryDate:   now.Unix() + expiresIn,
		TokenType:    refreshTokenType,
		ResourceURL:  resourceURL,
	}
}
