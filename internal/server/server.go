// Package server exposes the public HTTP surface: account status,
// referral codes and the Strava webhook.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/wnt/health-to-earn/internal/store"
	"github.com/wnt/health-to-earn/internal/strava"
)

const (
	// AppName and AppVersion identify the service on the root route.
	AppName    = "health-to-earn"
	AppVersion = "1.2.0"
)

// Store is the slice of the persistence layer the HTTP surface reads.
type Store interface {
	FindUserByAddress(ctx context.Context, address string) (*store.User, error)
	EnsureReferralCode(ctx context.Context, athleteID string) (string, error)
	Totals(ctx context.Context) (store.Counters, error)
}

// Webhook handles Strava subscription and event traffic.
type Webhook interface {
	VerifySubscription(mode, token, challenge string) (string, error)
	HandleActivityEvent(ctx context.Context, event strava.Event) strava.Result
}

// Server wires the gin router over the store and webhook service.
type Server struct {
	store   Store
	webhook Webhook
	engine  *gin.Engine
	logger  zerolog.Logger
}

// New builds the router. gin runs in release mode; request logging
// goes through zerolog instead of gin's default writer.
func New(st Store, webhook Webhook, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:   st,
		webhook: webhook,
		engine:  gin.New(),
		logger:  logger.With().Str("component", "http").Logger(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/referral", s.handleReferral)
	s.engine.GET("/webhook", s.handleWebhookVerify)
	s.engine.POST("/webhook", s.handleWebhookEvent)
	s.engine.GET("/statistics", s.handleStatistics)
}

// Router exposes the engine for tests.
func (s *Server) Router() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
