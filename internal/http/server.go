// Package http serves the lead dashboard: the /api/v1 JSON endpoints and the
// server-rendered explorer driven by htmx.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadboard/internal/api"
	"leadboard/internal/cache"
	"leadboard/internal/explorer"
	"leadboard/internal/log"
	"leadboard/internal/middleware/ratelimit"
	"leadboard/internal/middleware/security"
	"leadboard/internal/middleware/trace"
	"leadboard/internal/services"
	appweb "leadboard/web"
)

// Options configures a Server. Service and DataSource are required.
type Options struct {
	Service *services.LeadService

	// DataSource backs every explorer session, normally an api.Client
	// pointed at this server's own /api/v1.
	DataSource explorer.DataSource

	FetchTimeout       time.Duration
	SessionTTL         time.Duration
	MaxSessions        int
	RateLimitPerMinute int
	TrustedProxies     []string

	// Registry receives the server's collectors and is exposed on /metrics.
	// Nil gives the server a private registry.
	Registry *prometheus.Registry
	Logger   *log.Logger
}

type Server struct {
	http.Server

	svc       *services.LeadService
	sessions  *explorer.Sessions
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	caches    *cache.Manager
	logger    *log.Logger
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("lead service is required")
	}
	if opts.DataSource == nil {
		return nil, errors.New("explorer data source is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 500
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	explorerMetrics := explorer.NewMetrics(opts.Registry)
	newExplorer := func() *explorer.Explorer {
		return explorer.New(opts.DataSource, explorer.Options{
			FetchTimeout: opts.FetchTimeout,
			Metrics:      explorerMetrics,
			Logger:       opts.Logger,
		})
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		svc:       opts.Service,
		sessions:  explorer.NewSessions(newExplorer, opts.MaxSessions, opts.SessionTTL, explorerMetrics, opts.Logger),
		templates: t,
		limiter:   ratelimit.NewLimiter(rlConfig, opts.Registry, opts.Logger),
		detector:  security.NewDetector(opts.Registry, opts.Logger),
		caches:    cache.NewManager(opts.Logger),
		logger:    logger,
		started:   time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	s.caches.Register(s.sessions)
	s.limiter.Register(s.caches)
	s.svc.OnDelete(s.sessions)

	router := mux.NewRouter()
	tracer := trace.NewMiddleware(s.detector.ClientIP, opts.Logger, trace.NewMetrics(opts.Registry))
	router.Use(log.Middleware(logger))
	router.Use(tracer.WithRoute(routeLabel))
	router.Use(s.rateLimit)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	router.PathPrefix("/static/").Handler(
		security.StaticAssetMiddleware(3600)(http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))

	router.Handle("/", http.RedirectHandler("/explorer", http.StatusSeeOther)).Methods(http.MethodGet)
	s.registerAPI(router)
	s.registerExplorer(router)
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	var h http.Handler = router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", trace.HeaderRequestID}),
	)(h)
	h = handlers.CompressHandler(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.detector.Middleware(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// StartCleanup starts the periodic expiry of sessions and rate limit clients.
func (s *Server) StartCleanup(interval time.Duration) {
	s.caches.StartCleanup(interval)
}

// Shutdown stops cleanup, tears down every session and shuts the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
		s.sessions.Close()
	})
	return err
}

// rateLimit applies the limiter to remote clients. Loopback peers are the
// explorer's own API client and are not limited twice.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ClientIP, s.onRateLimit)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLoopback(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	const msg = "Rate limit exceeded. Please try again later."
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusTooManyRequests, api.Fail(msg))
		return
	}
	ErrorResponse(http.StatusTooManyRequests, msg).Write(w)
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// routeLabel is the route template, keeping metric label cardinality low.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// recoveryLogger adapts the structured logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct{ logger *log.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("Recovered from panic", log.FieldError, fmt.Sprint(v...))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]any{
		"sessions":           s.sessions.Len(),
		"rate_limit_clients": s.limiter.ActiveClients(),
	}
	status, code := "ready", http.StatusOK
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		checks["storage"] = err.Error()
		status, code = "not ready", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, api.Fail("Not found"))
		return
	}
	http.NotFound(w, r)
}
