package dev

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/servedev/internal/config"
	"github.com/vango-dev/servedev/internal/errors"
	"github.com/vango-dev/servedev/internal/listen"
)

const shutdownTimeout = 5 * time.Second

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the resolved configuration. Required.
	Config *config.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Output receives the startup summary (default: os.Stdout).
	Output io.Writer

	// Color enables ANSI colors in the startup summary.
	Color bool

	// Registry receives the server metrics. A fresh registry with Go and
	// process collectors is created when nil.
	Registry *prometheus.Registry

	// BuildStdin, BuildStdout and BuildStderr are handed to build
	// processes (default: the host's streams).
	BuildStdin  io.Reader
	BuildStdout io.Writer
	BuildStderr io.Writer
}

// Server is the development server.
type Server struct {
	config     *config.Config
	options    ServerOptions
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *Metrics
	hub        *Hub
	builder    *Builder
	dispatcher *Dispatcher
	router     *Router
	handler    http.Handler
	httpServer *http.Server

	ready chan struct{}
	mu    sync.Mutex
	addr  net.Addr
	runs  bool
}

// NewServer wires the hub, builder, dispatcher and router for options.Config.
func NewServer(options ServerOptions) *Server {
	cfg := options.Config
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if options.Output == nil {
		options.Output = os.Stdout
	}

	registry := options.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := NewMetrics(registry)

	hub := NewHub(logger, metrics)
	builder := NewBuilder(BuilderConfig{
		Program: cfg.Program,
		Stdin:   options.BuildStdin,
		Stdout:  options.BuildStdout,
		Stderr:  options.BuildStderr,
		Logger:  logger,
		Metrics: metrics,
	})
	dispatcher := NewDispatcher(DispatcherConfig{
		Hub:     hub,
		Builder: builder,
		Program: cfg.Program,
		Logger:  logger,
		Metrics: metrics,
	})
	router := NewRouter(RouterConfig{
		Reload:   cfg.Reload,
		Watching: cfg.Watching(),
		CORS:     cfg.CORS,
		Logger:   logger,
	}, hub, NewStaticHandler(cfg.Public, cfg.Static))

	s := &Server{
		config:     cfg,
		options:    options,
		logger:     logger,
		registry:   registry,
		metrics:    metrics,
		hub:        hub,
		builder:    builder,
		dispatcher: dispatcher,
		router:     router,
		ready:      make(chan struct{}),
	}
	s.handler = s.routes()
	return s
}

// routes builds the chi middleware stack around the router.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	if s.config.Metrics != "" {
		r.Method(http.MethodGet, s.config.Metrics,
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	r.Handle("/*", s.router)

	return r
}

// Handler returns the HTTP handler the server listens with.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the notification hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Dispatcher returns the change dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Ready is closed once the server is listening and the summary is printed.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start listens on the configured target and serves until ctx is done.
// A bind or TLS failure is returned before anything is served.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.runs {
		s.mu.Unlock()
		return nil
	}
	s.runs = true
	s.mu.Unlock()

	var tlsConfig *tls.Config
	if s.config.HTTPS {
		cert, err := tls.LoadX509KeyPair(s.config.Cert, s.config.Key)
		if err != nil {
			return errors.New(errors.CodeTLSMaterial).
				WithDetailf("cannot load %s and %s", s.config.Cert, s.config.Key).
				Wrap(err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"http/1.1"},
		}
	}

	ln, err := listen.Listen(ctx, s.config.Target)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	watchers := s.startWatchers()

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	io.WriteString(s.options.Output, RenderSummary(s.summaryInfo(ln.Addr()), s.options.Color))
	s.logger.Debug("listening", "address", ln.Addr().String(), "public", s.config.Public)
	close(s.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.New(errors.CodeListenFailed).Wrap(err)
		}
		return nil
	})
	for _, w := range watchers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(watchers)
		return nil
	})

	return g.Wait()
}

// startWatchers creates one watcher per binding. A pattern that cannot be
// watched is reported and skipped.
func (s *Server) startWatchers() []*Watcher {
	watchers := make([]*Watcher, 0, len(s.config.Bindings))
	for _, binding := range s.config.Bindings {
		w, err := NewWatcher(WatcherConfig{
			Pattern: binding.Pattern,
			Logger:  s.logger,
		}, func(path string) {
			s.dispatcher.HandleChange(binding, path)
		})
		if err != nil {
			s.logger.Warn("not watching",
				"pattern", binding.Pattern,
				"err", errors.FromError(err, errors.CodeWatchSetupFailed).FormatCompact(),
			)
			continue
		}
		watchers = append(watchers, w)
	}
	return watchers
}

// shutdown ends subscriptions, stops watching, drains HTTP and waits for
// running builds.
func (s *Server) shutdown(watchers []*Watcher) {
	s.hub.Close()
	for _, w := range watchers {
		w.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Debug("shutdown", "err", err)
		s.httpServer.Close()
	}

	s.builder.Wait()
	s.logger.Debug("stopped")
}

func (s *Server) summaryInfo(addr net.Addr) SummaryInfo {
	local := LocalURL(s.config.HTTPS, s.config.Target, addr)
	info := SummaryInfo{
		Public:         s.config.Public,
		Local:          local,
		Program:        s.config.Program,
		Bindings:       s.config.Bindings,
		UnboundTargets: s.config.UnboundTargets(),
	}
	if s.config.Watching() {
		info.Reload = local + s.config.Reload
		if s.config.Target.Kind != listen.KindTCP {
			info.Reload = s.config.Reload
		}
	}
	return info
}

// requestLogger logs every request at debug level once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond),
			)
		})
	}
}
