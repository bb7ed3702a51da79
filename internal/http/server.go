package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"budgetnest/internal/auth"
	"budgetnest/internal/core"
	"budgetnest/internal/log"
	"budgetnest/internal/middleware/ratelimit"
	"budgetnest/internal/middleware/security"
	"budgetnest/internal/middleware/trace"
	"budgetnest/internal/period"
	"budgetnest/internal/services"
	appweb "budgetnest/web"
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sizer is anything with a current entry count worth exporting as a gauge.
type Sizer interface {
	Size() int
}

// Dependencies are the collaborators the server renders and mutates through.
// All of them are built once in main.
type Dependencies struct {
	Gateway  auth.Gateway
	Income   *services.EntryManager[core.Income]
	Expenses *services.EntryManager[core.Expense]
	Insights *services.InsightsService
	Resolver *period.Resolver
	Store    Pinger
	Caches   map[string]Sizer
	Logger   *log.Logger
}

// Options tune the transport side of the server.
type Options struct {
	Addr           string
	CookieSecure   bool
	RateLimit      ratelimit.Config
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type appMetrics struct {
	uptime          time.Time
	incomeCreated   int64
	expensesCreated int64
	recordsDeleted  int64
	signIns         int64
	signUps         int64
	authFailures    int64
	staleViews      int64
}

type Server struct {
	http.Server
	templates *template.Template

	gateway  auth.Gateway
	income   *services.EntryManager[core.Income]
	expenses *services.EntryManager[core.Expense]
	insights *services.InsightsService
	resolver *period.Resolver
	store    Pinger
	caches   map[string]Sizer

	cookieSecure bool

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	headers          *security.HeadersMiddleware

	appMetrics *appMetrics
	logger     *log.Logger

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and mounts every route.
func NewServer(opts Options, deps Dependencies) (*Server, error) {
	if deps.Gateway == nil || deps.Income == nil || deps.Expenses == nil || deps.Insights == nil {
		return nil, errors.New("server requires a gateway, both entry managers and the insights service")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Resolver == nil {
		deps.Resolver = period.NewResolver(nil)
	}

	t, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := deps.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector(deps.Logger)
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
		},
		templates:        t,
		gateway:          deps.Gateway,
		income:           deps.Income,
		expenses:         deps.Expenses,
		insights:         deps.Insights,
		resolver:         deps.Resolver,
		store:            deps.Store,
		caches:           deps.Caches,
		cookieSecure:     opts.CookieSecure,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit, deps.Logger),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, deps.Logger),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		appMetrics:       &appMetrics{uptime: time.Now()},
		logger:           logger,
	}
	s.Handler = s.routes(deps.Logger)
	return s, nil
}

func (s *Server) routes(base *log.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(base))
	r.Use(s.traceMiddleware.Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(s.headers.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))
		r.Use(s.guard)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
		})

		r.Get("/login", s.handleLogin)
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signout", s.handleSignOut)

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(security.NoStore)
			r.Get("/", s.handleDashboard)
			r.Get("/overview", s.handleOverview)

			r.Get("/income", s.handleListIncome)
			r.Post("/income", s.handleCreateIncome)
			r.Post("/income/{id}/delete", s.handleDeleteIncome)
			r.Delete("/income/{id}", s.handleDeleteIncome)

			r.Get("/expenses", s.handleListExpenses)
			r.Post("/expenses", s.handleCreateExpense)
			r.Post("/expenses/{id}/delete", s.handleDeleteExpense)
			r.Delete("/expenses/{id}", s.handleDeleteExpense)
		})

		r.With(security.NoStore).Get("/insights", s.handleInsights)
		r.With(security.NoStore).Get("/api/insights", s.handleInsightsAPI)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Page not found").Write(w)
	})

	return r
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please slow down and try again.").
		TriggerErrorNotification("Too many requests. Please try again shortly.").
		Write(w)
}

// Shutdown stops accepting requests and drops rate limiter state.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
		s.rateLimiter.Stop()
	})
	return err
}

func (s *Server) countCreated(kind string) {
	if kind == "income" {
		atomic.AddInt64(&s.appMetrics.incomeCreated, 1)
		return
	}
	atomic.AddInt64(&s.appMetrics.expensesCreated, 1)
}

func (s *Server) countDeleted() {
	atomic.AddInt64(&s.appMetrics.recordsDeleted, 1)
}
