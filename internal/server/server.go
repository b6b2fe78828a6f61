package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/dispatch/internal/config"
	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/logging"
	"github.com/example/dispatch/internal/metrics"
	"github.com/example/dispatch/internal/registry"
	"github.com/example/dispatch/internal/scope"
)

// ReloadResult records one configuration reload attempt.
type ReloadResult struct {
	Time    time.Time `json:"time"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Server wraps the managed pipeline with HTTP server functionality.
type Server struct {
	cfg        *config.Config
	configPath string
	reg        *registry.Registry
	collector  *metrics.Collector
	promReg    *prometheus.Registry
	sessions   *scope.SessionStore
	watcher    *config.Watcher

	// current holds the live pipeline; reload swaps it atomically.
	current atomic.Pointer[pipelineHolder]

	httpServer  *http.Server
	adminServer *http.Server
	startTime   time.Time

	mu            sync.Mutex
	reloadHistory []ReloadResult
}

type pipelineHolder struct {
	handler  http.Handler
	pipeline destroyer
}

type destroyer interface {
	DestroyPipeline()
}

// New creates a server over the given configuration and binding registry.
// configPath is used for hot reload; empty disables watching.
func New(cfg *config.Config, configPath string, reg *registry.Registry) (*Server, error) {
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		reg:        reg,
		collector:  collector,
		promReg:    promReg,
		startTime:  time.Now(),
	}

	if cfg.Session.Enabled {
		store, err := scope.NewSessionStore(cfg.Session.Cookie, cfg.Session.Capacity)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		s.sessions = store
	}

	if err := s.install(cfg); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      http.HandlerFunc(s.serve),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 30*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	if cfg.Admin.Enabled {
		s.adminServer = &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      s.adminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Sessions returns the session store, or nil when sessions are disabled.
func (s *Server) Sessions() *scope.SessionStore {
	return s.sessions
}

// install builds a pipeline from cfg and makes it the live one, destroying
// the pipeline it replaces.
func (s *Server) install(cfg *config.Config) error {
	p, err := BuildPipeline(cfg, s.reg, s.collector)
	if err != nil {
		return err
	}

	holder := &pipelineHolder{
		handler:  p.Handler(http.HandlerFunc(s.fallthroughHandler)),
		pipeline: p,
	}
	old := s.current.Swap(holder)
	if old != nil {
		old.pipeline.DestroyPipeline()
	}
	return nil
}

// serve routes every request through the live pipeline, binding the
// session first when the store is enabled.
func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil {
		s.sessions.Attach(w, r)
	}
	s.current.Load().handler.ServeHTTP(w, r)
}

// fallthroughHandler is the host chain: it answers requests that no filter
// handled and no servlet matched.
func (s *Server) fallthroughHandler(w http.ResponseWriter, r *http.Request) {
	errors.ErrNotFound.WriteJSON(w)
}

// adminHandler exposes health, metrics and pipeline inspection.
func (s *Server) adminHandler() http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"uptime":  time.Since(s.startTime).String(),
			"context": s.cfg.Context.Name,
		})
	})

	router.Handler(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	router.HandlerFunc(http.MethodGet, "/pipeline", func(w http.ResponseWriter, r *http.Request) {
		type mapping struct {
			Binding string `json:"binding"`
			Pattern string `json:"pattern"`
		}
		out := struct {
			Filters  []mapping `json:"filters"`
			Servlets []mapping `json:"servlets"`
		}{}
		for _, fc := range s.cfg.Filters {
			out.Filters = append(out.Filters, mapping{fc.Binding, fc.Pattern})
		}
		for _, sc := range s.cfg.Servlets {
			out.Servlets = append(out.Servlets, mapping{sc.Binding, sc.Pattern})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	router.HandlerFunc(http.MethodGet, "/reloads", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		history := make([]ReloadResult, len(s.reloadHistory))
		copy(history, s.reloadHistory)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(history)
	})

	return router
}

// Reload rebuilds the pipeline from cfg and records the attempt.
func (s *Server) Reload(cfg *config.Config) ReloadResult {
	result := ReloadResult{Time: time.Now(), Success: true}
	if err := s.install(cfg); err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		s.cfg = cfg
		s.collector.RecordReload()
	}

	s.mu.Lock()
	s.reloadHistory = append(s.reloadHistory, result)
	if len(s.reloadHistory) > 20 {
		s.reloadHistory = s.reloadHistory[len(s.reloadHistory)-20:]
	}
	s.mu.Unlock()
	return result
}

// Start starts the HTTP servers and the config watcher.
func (s *Server) Start() error {
	errCh := make(chan error, 2)

	go func() {
		logging.Info("starting server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	if s.adminServer != nil {
		go func() {
			logging.Info("starting admin server", zap.String("address", s.adminServer.Addr))
			if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("admin server error: %w", err)
			}
		}()
	}

	if s.configPath != "" {
		watcher, err := config.NewWatcher(s.configPath)
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		watcher.OnChange(func(cfg *config.Config) {
			result := s.Reload(cfg)
			if result.Success {
				logging.Info("pipeline reloaded")
			} else {
				logging.Error("pipeline reload failed", zap.String("error", result.Error))
			}
		})
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		s.watcher = watcher
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		// Give servers a moment to start
	}
	return nil
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts down
// gracefully. SIGHUP forces a config reload.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		switch sig {
		case syscall.SIGHUP:
			if s.configPath == "" {
				continue
			}
			cfg, err := config.NewLoader().Load(s.configPath)
			if err != nil {
				logging.Error("reload failed", zap.Error(err))
				continue
			}
			s.Reload(cfg)
		default:
			logging.Info("shutting down gracefully")
			return s.Shutdown(config.Duration(s.cfg.Server.ShutdownTimeout, 10*time.Second))
		}
	}
	return nil
}

// Shutdown stops the servers and destroys the live pipeline.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			logging.Error("admin server shutdown error", zap.Error(err))
		}
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("server shutdown error", zap.Error(err))
	}

	if holder := s.current.Load(); holder != nil {
		holder.pipeline.DestroyPipeline()
	}

	logging.Info("server shutdown complete")
	return nil
}
