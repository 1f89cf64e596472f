// Package api exposes monitoring control, on-demand collection and stored
// sessions over HTTP for a presentation layer.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/collector"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/session"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type Config struct {
	Listen    string
	RateLimit float64
	RateBurst int
	// Bound on every request to the device
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8765",
		RateLimit:       5,
		RateBurst:       10,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Collector serves on-demand collection and introspection.
type Collector interface {
	CollectSystem(ctx context.Context) (*telemetry.SystemRecord, error)
	CollectApp(ctx context.Context, pkg string) (*telemetry.AppSnapshot, error)
	CollectApps(ctx context.Context, pkgs []string) (map[string]*telemetry.AppSnapshot, error)
	DeviceInfo(ctx context.Context) (*telemetry.DeviceInfo, error)
	InstalledApps(ctx context.Context, thirdPartyOnly bool) ([]telemetry.AppInfo, error)
	ResetBatteryStats(ctx context.Context) error
	Stats() collector.PerformanceStats
}

// Sessions starts and stops monitoring runs.
type Sessions interface {
	Start(ctx context.Context, req session.Request) (*storage.Session, error)
	Stop(ctx context.Context, status storage.Status) (*storage.Session, error)
	Current() *storage.Session
}

// Monitor reports on the polling task.
type Monitor interface {
	Running() bool
	Last() (monitor.Event, bool)
	Intervals() map[collector.Domain]collector.IntervalInfo
}

// Archive reads stored sessions.
type Archive interface {
	ListSessions(ctx context.Context, limit int) ([]storage.Session, error)
	FindSession(ctx context.Context, ref string) (*storage.Session, error)
	Summary(ctx context.Context, id int64) (*storage.SessionSummary, error)
	Export(ctx context.Context, id int64, w io.Writer) error
}

// DeviceLister lists devices known to the bridge.
type DeviceLister func(ctx context.Context) ([]adb.Device, error)

type Deps struct {
	Collector Collector
	Sessions  Sessions
	Monitor   Monitor
	Archive   Archive
	Devices   DeviceLister
}

type Server struct {
	cfg         Config
	deps        Deps
	log         logger.Logger
	engine      *gin.Engine
	rateLimiter *rate.Limiter
	httpServer  *http.Server
}

func New(cfg Config, deps Deps, log logger.Logger) *Server {
	d := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}

	s := &Server{
		cfg:         cfg,
		deps:        deps,
		log:         log,
		engine:      gin.New(),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}

	s.engine.Use(gin.Recovery(), s.requestIDMiddleware(), s.loggingMiddleware())
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.log.Info().Str("listen", s.cfg.Listen).Msg("API server started")

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return errors.New().Wrap(ErrServe, err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.log.Info().Msg("Shutting down API server")

	return s.httpServer.Shutdown(shutdownCtx)
}
