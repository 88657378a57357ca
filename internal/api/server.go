// Package api serves the HTTP surface: health, metrics, verifier status,
// signals, statistics and text analysis.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/ledger"
	"fx-signal-lab/internal/observability"
	"fx-signal-lab/internal/verification"
)

// StatisticsReader serves statistics snapshots.
type StatisticsReader interface {
	Latest(ctx context.Context, pair string) (*domain.PerformanceStatistics, error)
	History(ctx context.Context, pair string, limit int) ([]*domain.PerformanceStatistics, error)
}

// VerifierStatus reports the state of the verification loop.
type VerifierStatus interface {
	Status() verification.Status
	Interval() time.Duration
}

// Options contains configuration for creating a Server.
type Options struct {
	Ledger      *ledger.Ledger
	Statistics  StatisticsReader
	Verifier    VerifierStatus // optional; /status reports "disabled" when nil
	CORSOrigins []string       // Default: all origins
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	Debug       bool // gin debug mode with its route table on stdout
}

// Server is the HTTP API.
type Server struct {
	ledger    *ledger.Ledger
	stats     StatisticsReader
	verifier  VerifierStatus
	metrics   *observability.Metrics
	logger    zerolog.Logger
	startedAt time.Time

	router *gin.Engine
}

// New creates a Server with all routes registered.
func New(opts Options) *Server {
	s := &Server{
		ledger:    opts.Ledger,
		stats:     opts.Statistics,
		verifier:  opts.Verifier,
		metrics:   observability.OrDefault(opts.Metrics),
		logger:    opts.Logger.With().Str("component", "api").Logger(),
		startedAt: time.Now().UTC(),
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(s.metricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(opts.CORSOrigins) == 0 || (len(opts.CORSOrigins) == 1 && opts.CORSOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/status", s.handleStatus)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/signals", s.handleListSignals)
		v1.GET("/signals/:id", s.handleGetSignal)
		v1.POST("/analyses", s.handleAnalyze)
		v1.GET("/statistics", s.handleStatistics)
		v1.GET("/statistics/history", s.handleStatisticsHistory)
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
