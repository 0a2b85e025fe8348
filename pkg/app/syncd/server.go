// Package syncd implements app.Runner for the sync daemon process.
package syncd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sequoiaprint/keka-integrations/pkg/app/httpserver"
	"github.com/sequoiaprint/keka-integrations/pkg/config"
	"github.com/sequoiaprint/keka-integrations/pkg/hrstore"
	"github.com/sequoiaprint/keka-integrations/pkg/keka"
	"github.com/sequoiaprint/keka-integrations/pkg/kvcache"
	"github.com/sequoiaprint/keka-integrations/pkg/pgutil"
	syncpkg "github.com/sequoiaprint/keka-integrations/pkg/sync"
)

const (
	defaultRequestTimeout = 60 * time.Second
	syncJobTimeout        = 30 * time.Minute
	tokenRefreshTimeout   = time.Minute
	shutdownTimeout       = 30 * time.Second
)

// Server holds cfg to init the sync daemon.
type Server struct {
	cfg *config.Config

	ready atomic.Bool
}

// NewServer initializes a new sync daemon server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("sync daemon config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting sync daemon",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	cache, err := s.openCache()
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	store := hrstore.NewStore(db)
	client := keka.NewClient(&cfg.Keka, logger)
	tokens := keka.NewTokenProvider(&cfg.Keka, cache, logger)

	attendance := syncpkg.NewAttendanceSyncer(
		store, client, tokens, cache,
		cfg.Sync.MaxCallsPerMinute, cfg.Sync.RateWindow,
		cfg.Sync.AttendancePageDelay, logger,
	)
	employees := syncpkg.NewEmployeeSyncer(
		store, client, tokens, cache,
		syncpkg.NewNameMatcher(syncpkg.DefaultAliases, syncpkg.DefaultVariantClasses),
		cfg.Keka.TargetGroupIDs,
		cfg.Sync.MaxCallsPerMinute, cfg.Sync.RateWindow,
		cfg.Sync.EmployeePageDelay, logger,
	)

	s.warmUpToken(ctx, tokens, logger)

	scheduler, err := s.startScheduler(ctx, attendance, employees, tokens, logger)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	s.startMetricsServer(ctx, logger)

	s.ready.Store(true)

	router := s.setupRouter(attendance, employees)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	err = httpserver.ServeAndWait(ctx, logger, srv, shutdownTimeout)

	// Stop background work before deferred cache/DB closes kick in.
	s.ready.Store(false)
	scheduler.Stop()

	return err
}

func (s *Server) openCache() (kvcache.Store, error) {
	if s.cfg.Cache.InMemory {
		return kvcache.OpenBadgerInMemory()
	}
	return kvcache.OpenBadger(s.cfg.Cache.Dir)
}

// warmUpToken exchanges credentials once at boot so the first scheduled
// run starts with a cached token. Failure is non-fatal; the engines
// retry on demand.
func (s *Server) warmUpToken(ctx context.Context, tokens *keka.TokenProvider, logger *zap.Logger) {
	warmCtx, cancel := context.WithTimeout(ctx, tokenRefreshTimeout)
	defer cancel()

	if _, _, err := tokens.Token(warmCtx); err != nil {
		logger.Warn("token warm-up failed, will retry on first run", zap.Error(err))
		return
	}
	logger.Info("access token warmed up")
}

func (s *Server) startScheduler(
	ctx context.Context,
	attendance *syncpkg.AttendanceSyncer,
	employees *syncpkg.EmployeeSyncer,
	tokens *keka.TokenProvider,
	logger *zap.Logger,
) (*syncpkg.Scheduler, error) {
	loc, err := time.LoadLocation(s.cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.cfg.Sync.Timezone, err)
	}

	scheduler := syncpkg.NewScheduler(loc, logger)

	scheduler.Every("attendance-sync",
		s.cfg.Sync.AttendanceInterval, s.cfg.Sync.InitialDelay, syncJobTimeout,
		func(ctx context.Context) error {
			_, err := attendance.Run(ctx)
			return err
		})

	err = scheduler.DailyAt("employee-sync", s.cfg.Sync.EmployeeTimes, syncJobTimeout,
		func(ctx context.Context) error {
			_, err := employees.Run(ctx)
			return err
		})
	if err != nil {
		scheduler.Stop()
		return nil, err
	}

	err = scheduler.DailyAt("token-refresh", s.cfg.Sync.TokenRefreshTimes, tokenRefreshTimeout,
		func(ctx context.Context) error {
			_, err := tokens.Refresh(ctx)
			return err
		})
	if err != nil {
		scheduler.Stop()
		return nil, err
	}

	// One-shot employee kick shortly after boot, so a fresh deployment
	// does not wait for the next wall clock slot.
	go func() {
		timer := time.NewTimer(s.cfg.Sync.InitialDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		runCtx, cancel := context.WithTimeout(ctx, syncJobTimeout)
		defer cancel()
		if _, err := employees.Run(runCtx); err != nil {
			logger.Warn("initial employee sync failed", zap.Error(err))
		}
	}()

	return scheduler, nil
}

// startMetricsServer exposes /metrics on its own port when monitoring
// is enabled, following the Prometheus sidecar convention.
func (s *Server) startMetricsServer(ctx context.Context, logger *zap.Logger) {
	if !s.cfg.Monitoring.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Monitoring.MetricsPort),
		Handler: mux,
	}

	go func() {
		if err := httpserver.ServeAndWait(ctx, logger.Named("metrics"), srv, shutdownTimeout); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) setupRouter(
	attendance *syncpkg.AttendanceSyncer,
	employees *syncpkg.EmployeeSyncer,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sync/attendance", func(r chi.Router) {
			r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
				status, err := attendance.Status(req.Context())
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, status)
			})
			r.Post("/run", func(w http.ResponseWriter, _ *http.Request) {
				s.trigger(w, "attendance", func(ctx context.Context) error {
					_, err := attendance.Run(ctx)
					return err
				})
			})
			r.Post("/reset", func(w http.ResponseWriter, req *http.Request) {
				if err := attendance.Reset(req.Context()); err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
			})
		})

		r.Route("/sync/employees", func(r chi.Router) {
			r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
				status, err := employees.Status(req.Context())
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, status)
			})
			r.Post("/run", func(w http.ResponseWriter, _ *http.Request) {
				s.trigger(w, "employees", func(ctx context.Context) error {
					_, err := employees.Run(ctx)
					return err
				})
			})
		})

		r.Post("/cache/employee-ids/clear", func(w http.ResponseWriter, req *http.Request) {
			if err := attendance.ClearEmployeeIDCache(req.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		})
	})

	return r
}

// trigger kicks off a sync run in the background. Runs can outlive the
// request timeout, so the response only acknowledges the start; a run
// already in progress is reported as a conflict.
func (s *Server) trigger(w http.ResponseWriter, name string, job syncpkg.Job) {
	started := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncJobTimeout)
		defer cancel()
		err := job(ctx)
		select {
		case started <- err:
		default:
		}
	}()

	select {
	case err := <-started:
		// Only an immediate rejection arrives this fast
		if errors.Is(err, syncpkg.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "engine": name})
	case <-time.After(100 * time.Millisecond):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "engine": name})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
