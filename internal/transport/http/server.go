package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/auth"
	"github.com/vovakirdan/agora-server/internal/config"
	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/service/activity"
	"github.com/vovakirdan/agora-server/internal/service/messaging"
	"github.com/vovakirdan/agora-server/internal/service/notifications"
	"github.com/vovakirdan/agora-server/internal/service/typing"
	"github.com/vovakirdan/agora-server/internal/store"
)

// Deps are the services the HTTP layer serves.
type Deps struct {
	Accounts      store.AccountStore
	Auth          *auth.Service
	Authenticator *auth.Authenticator
	Registry      *core.Registry
	Messaging     *messaging.Service
	Notifications *notifications.Service
	Typing        *typing.Tracker
	Activity      *activity.Service
}

// Server is the HTTP server plus the websocket handlers it has handed
// hijacked connections to, which net/http no longer tracks.
type Server struct {
	*stdhttp.Server
	sessions sync.WaitGroup
	cancel   context.CancelFunc
}

// NewServer builds an HTTP server with REST and websocket routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{cancel: cancel}
	s.Server = &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(deps, cfg, logger, &s.sessions),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	return s
}

// Shutdown stops accepting connections, asks every websocket peer to go
// away and waits for their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("wait for websocket sessions: %w", ctx.Err()))
	}
}

// newHandler mounts the websocket endpoints next to the gin engine. The
// upgrade needs the raw ResponseWriter, which gin's writer cannot hijack.
func newHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger, sessions *sync.WaitGroup) stdhttp.Handler {
	wsOpts := WSOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		RateLimit:       cfg.WSRateLimit,
		SessionBuffer:   cfg.SessionBuffer,
	}
	messenger := NewWSHandler(NewMessengerChannel(deps.Messaging, deps.Typing), deps.Authenticator, deps.Registry, wsOpts, logger)
	messenger.active = sessions
	admin := NewWSHandler(NewAdminChannel(deps.Activity), deps.Authenticator, deps.Registry, wsOpts, logger)
	admin.active = sessions

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws/messenger", messenger)
	mux.Handle("/ws/admin", admin)
	mux.Handle("/", NewRouter(deps, logger))
	return mux
}

// NewRouter registers the REST routes on a fresh gin engine.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	userHandlers := NewUserHandlers(deps.Messaging, logger)
	convHandlers := NewConversationHandlers(deps.Messaging, logger)
	notifHandlers := NewNotificationHandlers(deps.Notifications, logger)
	adminHandlers := NewAdminHandlers(deps.Activity, deps.Notifications, deps.Registry, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.Auth, logger))
	{
		authed.GET("/users/search", userHandlers.SearchUsers)

		authed.GET("/conversations", convHandlers.List)
		authed.POST("/conversations", convHandlers.Start)
		authed.GET("/conversations/:id", convHandlers.Get)
		authed.DELETE("/conversations/:id", convHandlers.Delete)
		authed.GET("/conversations/:id/messages", convHandlers.Messages)
		authed.POST("/conversations/:id/messages", convHandlers.Send)
		authed.POST("/conversations/:id/read", convHandlers.ReadAll)

		authed.GET("/messages/unread", convHandlers.Unread)
		authed.PUT("/messages/:id", convHandlers.EditMessage)
		authed.DELETE("/messages/:id", convHandlers.DeleteMessage)
		authed.POST("/messages/:id/read", convHandlers.ReadMessage)

		authed.GET("/notifications", notifHandlers.List)
		authed.DELETE("/notifications", notifHandlers.DeleteAll)
		authed.GET("/notifications/recent", notifHandlers.Recent)
		authed.GET("/notifications/unread", notifHandlers.Unread)
		authed.POST("/notifications/read-all", notifHandlers.MarkAllRead)
		authed.POST("/notifications/:id/read", notifHandlers.MarkRead)
		authed.DELETE("/notifications/:id", notifHandlers.Delete)
	}

	adminGroup := authed.Group("/admin")
	adminGroup.Use(AdminMiddleware(deps.Accounts, logger))
	{
		adminGroup.GET("/activities", adminHandlers.Activities)
		adminGroup.GET("/stats", adminHandlers.Stats)
		adminGroup.GET("/sessions", adminHandlers.Sessions)
		adminGroup.POST("/system-message", adminHandlers.SystemMessage)
		adminGroup.POST("/notifications", adminHandlers.CreateNotification)
		adminGroup.POST("/notifications/cleanup", adminHandlers.CleanupNotifications)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
