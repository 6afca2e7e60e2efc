package router

import (
	"net/http"

	"github.com/dtroode/accounts-server/internal/api/http/handler"
	"github.com/dtroode/accounts-server/internal/api/http/middleware"
	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/metrics"
	"github.com/dtroode/accounts-server/internal/model"
	"github.com/dtroode/accounts-server/internal/service"
)

// Config holds the transport limits of the router.
type Config struct {
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// Router builds the HTTP handler tree of the accounts API.
type Router struct {
	authService    *service.Auth
	avatarService  handler.AvatarService
	pingers        map[string]model.Pinger
	metrics        *metrics.Metrics
	contextManager model.ContextManager
	cfg            Config
	logger         *logger.Logger
}

// New creates a new Router. avatarService and m may be nil, disabling the
// avatar routes and /metrics respectively.
func New(
	authService *service.Auth,
	avatarService handler.AvatarService,
	pingers map[string]model.Pinger,
	m *metrics.Metrics,
	contextManager model.ContextManager,
	cfg Config,
	logger *logger.Logger,
) *Router {
	return &Router{
		authService:    authService,
		avatarService:  avatarService,
		pingers:        pingers,
		metrics:        m,
		contextManager: contextManager,
		cfg:            cfg,
		logger:         logger,
	}
}

// Register registers all routes and wraps them in the middleware chain:
// logging, metrics, panic recovery and CORS, outermost first.
func (r *Router) Register() http.Handler {
	mux := http.NewServeMux()

	r.registerHealthRoutes(mux)
	r.registerAuthRoutes(mux)
	r.registerUserRoutes(mux)

	var h http.Handler = mux
	h = middleware.NewCORS(r.cfg.AllowedOrigins).Handle(h)
	h = middleware.NewRecovery(r.logger).Handle(h)
	if r.metrics != nil {
		h = middleware.NewMetrics(r.metrics).Handle(h)
	}
	h = middleware.NewLogging(r.logger).Handle(h)

	return h
}

func (r *Router) registerHealthRoutes(mux *http.ServeMux) {
	health := handler.NewHealth(r.pingers, r.logger)

	mux.HandleFunc("GET /{$}", health.Hello)
	mux.HandleFunc("GET /healthz", health.Live)
	mux.HandleFunc("GET /readyz", health.Ready)
	if r.metrics != nil {
		mux.Handle("GET /metrics", r.metrics.Handler())
	}
}

func (r *Router) registerAuthRoutes(mux *http.ServeMux) {
	auth := handler.NewAuth(r.authService, r.contextManager, r.logger, r.cfg.MaxBodyBytes)
	withSession := r.sessionRequired()

	mux.HandleFunc("POST /register/{$}", auth.Register)
	mux.HandleFunc("POST /login/{$}", auth.Login)
	mux.HandleFunc("POST /session/{$}", auth.Session)
	mux.Handle("GET /secret/{$}", withSession(auth.Secret))
	mux.Handle("POST /logout/{$}", withSession(auth.Logout))
}

func (r *Router) registerUserRoutes(mux *http.ServeMux) {
	user := handler.NewUser(r.authService, r.avatarService, r.contextManager, r.logger, r.cfg.MaxBodyBytes)
	withSession := r.sessionRequired()

	mux.HandleFunc("GET /api/user/{$}", user.List)
	mux.HandleFunc("GET /api/user/{id}/{$}", user.Get)
	mux.Handle("PUT /api/user/{$}", withSession(user.Update))
	mux.Handle("POST /api/user/password/{$}", withSession(user.ChangePassword))
	mux.Handle("DELETE /api/user/{$}", withSession(user.Delete))

	if user.AvatarsEnabled() {
		mux.Handle("POST /api/user/avatar/{$}", withSession(user.UploadAvatar))
		mux.HandleFunc("GET /api/user/{id}/avatar/{$}", user.Avatar)
	}
}

func (r *Router) sessionRequired() func(http.HandlerFunc) http.Handler {
	authenticate := middleware.NewAuthenticate(r.authService, r.contextManager, r.logger)
	return func(next http.HandlerFunc) http.Handler {
		return authenticate.Handle(next)
	}
}
