package http

import (
	"context"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"expensewise/internal/auth"
	"expensewise/internal/cache"
	applog "expensewise/internal/log"
	"expensewise/internal/middleware/ratelimit"
	"expensewise/internal/middleware/security"
	"expensewise/internal/middleware/trace"
	"expensewise/internal/services"
	"expensewise/internal/tracker"
	appweb "expensewise/web"
)

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Addr               string
	CookieSecure       bool
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	logger    *applog.Logger

	expenses *services.ExpenseService
	auth     *auth.Service
	trackers *tracker.Registry
	pinger   Pinger
	caches   *cache.Manager

	cookieSecure bool

	// Middleware components
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	appMetrics *appMetrics

	// Cancelled on shutdown so open event streams return.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	stopFollow   func()
	shutdownOnce sync.Once
}

// appMetrics tracks application-specific counters.
type appMetrics struct {
	expensesCreated int64
	expensesDeleted int64
	profilesSaved   int64
	summaries       int64
	streams         int64
	uptime          time.Time
}

// NewServer configures routes, middleware and templates, returning a ready-to-run server.
func NewServer(opts Options, svc *services.ExpenseService, authSvc *auth.Service, trackers *tracker.Registry, pinger Pinger) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.FromContext(context.Background())
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
		logger:       logger,
		expenses:     svc,
		auth:         authSvc,
		trackers:     trackers,
		pinger:       pinger,
		cookieSecure: opts.CookieSecure,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
		appMetrics:   &appMetrics{uptime: time.Now()},
	}

	s.securityDetector = security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
		SkipPrefixes:      []string{"/static/", "/events", "/healthz", "/readyz"},
	})
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP, "/static/", "/healthz", "/readyz")

	s.caches = cache.NewManager(logger.Logger)
	s.caches.Register("sessions", authSvc.Sessions())
	s.caches.Register("summaries", svc.SummaryCache())
	s.caches.StartCleanup(10 * time.Minute)

	if trackers != nil {
		s.stopFollow = trackers.Follow(authSvc)
	}

	t, err := parseTemplates()
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	// Ops
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Public and auth pages
	authLog := applog.ComponentMiddleware(applog.ComponentAuth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /login", authLog(s.authRoute(s.handleLoginPage)))
	mux.Handle("POST /login", authLog(s.authRoute(s.handleLogin)))
	mux.Handle("GET /signup", authLog(s.authRoute(s.handleSignupPage)))
	mux.Handle("POST /signup", authLog(s.authRoute(s.handleSignup)))
	mux.Handle("POST /logout", authLog(http.HandlerFunc(s.handleLogout)))

	// Signed-in pages and partials
	expenseLog := applog.ComponentMiddleware(applog.ComponentExpense)
	mux.HandleFunc("GET /dashboard", s.requirePage(s.handleDashboard))
	mux.HandleFunc("GET /profile", s.requirePage(s.handleProfilePage))
	mux.HandleFunc("POST /profile", s.requirePage(s.handleSaveProfile))
	mux.HandleFunc("GET /ui/summary", s.requirePage(s.handleSummaryPartial))
	mux.Handle("POST /expenses", expenseLog(s.requirePage(s.handleCreateExpense)))
	mux.Handle("DELETE /expenses/{id}", expenseLog(s.requirePage(s.handleDeleteExpense)))
	mux.Handle("POST /expenses/{id}", expenseLog(s.requirePage(s.handleDeleteExpense)))
	mux.Handle("GET /events", applog.ComponentMiddleware(applog.ComponentTracker)(s.requirePage(s.handleEvents)))

	// JSON API
	mux.HandleFunc("GET /api/summary", s.requireAPI(s.handleAPISummary))
	mux.HandleFunc("GET /api/expenses", s.requireAPI(s.handleAPIExpenses))
	mux.HandleFunc("GET /api/categories", s.requireAPI(s.handleAPICategories))
	mux.HandleFunc("GET /api/profile", s.requireAPI(s.handleAPIProfile))
	mux.HandleFunc("PUT /api/profile", s.requireAPI(s.handleAPISaveProfile))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)

	// Outermost first: trace, headers, detector, origin check, limiter, session.
	var handler http.Handler = mux
	handler = s.loadSession(handler)
	handler = limit(handler)
	handler = s.securityDetector.SameOrigin(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown stops event streams, background sweepers and the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cancelBase()
		if s.stopFollow != nil {
			s.stopFollow()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		if s.caches != nil {
			s.caches.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
		if s.trackers != nil {
			s.trackers.Close()
		}
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	if isHTMX(r) {
		NewHTMXResponse().
			Status(http.StatusTooManyRequests).
			TriggerErrorNotification("Too many requests. Please slow down.").
			Write(w)
		return
	}
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
}
