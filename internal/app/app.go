package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/agora-server/internal/auth"
	"github.com/vovakirdan/agora-server/internal/config"
	"github.com/vovakirdan/agora-server/internal/core"
	logpkg "github.com/vovakirdan/agora-server/internal/log"
	"github.com/vovakirdan/agora-server/internal/service/activity"
	"github.com/vovakirdan/agora-server/internal/service/messaging"
	"github.com/vovakirdan/agora-server/internal/service/notifications"
	"github.com/vovakirdan/agora-server/internal/service/push"
	"github.com/vovakirdan/agora-server/internal/service/typing"
	"github.com/vovakirdan/agora-server/internal/store"
	"github.com/vovakirdan/agora-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/agora-server/internal/transport/http"
)

// App wires together core, services and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	cleanupInterval time.Duration
	statsInterval   time.Duration
	clock           clock.Clock
	dispatcher      *core.Dispatcher
	typing          *typing.Tracker
	notifications   *notifications.Service
	activity        *activity.Service
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	// Initialize database store
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)
	authenticator := auth.NewAuthenticator(auth.NewJWTVerifier(jwtConfig), st, logpkg.Component(logger, "auth"))

	clk := clock.New()
	registry := core.NewRegistry(logpkg.Component(logger, "registry"))
	dispatcher := core.NewDispatcher(registry, logpkg.Component(logger, "dispatcher"), cfg.DispatchWorkers, cfg.DispatchQueue)
	pusher := push.New(st, dispatcher, logpkg.Component(logger, "push"))

	activitySvc := activity.NewService(st, registry, dispatcher, clk, logpkg.Component(logger, "activity"))
	messagingSvc := messaging.NewService(st, pusher, clk, cfg.MaxMessageLength, logpkg.Component(logger, "messaging"))
	notificationSvc := notifications.NewService(st, pusher, activitySvc, clk, notifications.Config{
		DedupWindow:   cfg.DedupWindow,
		RetentionDays: cfg.NotificationRetentionDays,
	}, logpkg.Component(logger, "notifications"))
	tracker := typing.NewTracker(st, pusher, clk, cfg.TypingTTL, logpkg.Component(logger, "typing"))

	server := transporthttp.NewServer(transporthttp.Deps{
		Accounts:      st,
		Auth:          authService,
		Authenticator: authenticator,
		Registry:      registry,
		Messaging:     messagingSvc,
		Notifications: notificationSvc,
		Typing:        tracker,
		Activity:      activitySvc,
	}, cfg, logpkg.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		cleanupInterval: cfg.CleanupInterval,
		statsInterval:   cfg.StatsInterval,
		clock:           clk,
		dispatcher:      dispatcher,
		typing:          tracker,
		notifications:   notificationSvc,
		activity:        activitySvc,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and background loops, blocking until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() { a.dispatcher.Run(bgCtx) })
	wg.Go(func() { a.every(bgCtx, a.cleanupInterval, a.cleanup) })
	wg.Go(func() { a.every(bgCtx, a.statsInterval, a.publishStats) })

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	stopBackground()
	wg.Wait()
	a.close()
	return runErr
}

// every runs fn on each tick until ctx is done. A non-positive interval disables the loop.
func (a *App) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := a.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (a *App) cleanup(ctx context.Context) {
	n, err := a.notifications.Cleanup(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("notification cleanup failed")
		return
	}
	if n > 0 {
		summary := fmt.Sprintf("purged %d expired notifications", n)
		if err := a.activity.Record(ctx, activity.KindCleanup, nil, summary); err != nil {
			a.log.Warn().Err(err).Msg("record cleanup activity")
		}
	}
}

func (a *App) publishStats(ctx context.Context) {
	if err := a.activity.PublishStats(ctx); err != nil {
		a.log.Warn().Err(err).Msg("publish stats failed")
	}
}

// close releases the typing timers and the database.
func (a *App) close() {
	a.typing.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
