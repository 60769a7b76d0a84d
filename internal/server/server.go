package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/raven/internal/activation"
	"github.com/dukerupert/raven/internal/auth"
	"github.com/dukerupert/raven/internal/events"
	"github.com/dukerupert/raven/internal/handler"
	"github.com/dukerupert/raven/internal/middleware"
	"github.com/dukerupert/raven/internal/session"
	"github.com/dukerupert/raven/internal/store"
)

type Config struct {
	// APISecret is the shared secret the bot and launcher hold; the wire
	// key is derived from it, see middleware.DeriveAPIKey.
	APISecret string
}

type Server struct {
	db          *sql.DB
	registry    *session.Registry
	hub         *events.Hub
	authH       *handler.AuthHandler
	statsH      *handler.StatsHandler
	botH        *handler.BotHandler
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	accountStore := store.NewAccountStore(db)
	keyStore := store.NewActivationKeyStore(db)
	auditStore := store.NewAuditStore(db)

	registry := session.NewRegistry(logger.With("component", "sessions"))
	hub := events.NewHub(logger.With("component", "events"))

	authSvc := auth.NewService(accountStore, auditStore, registry, logger.With("component", "auth"))
	activationSvc := activation.NewService(keyStore, logger.With("component", "activation"))

	return &Server{
		db:          db,
		registry:    registry,
		hub:         hub,
		authH:       handler.NewAuthHandler(authSvc, hub, logger.With("component", "auth_handler")),
		statsH:      handler.NewStatsHandler(registry),
		botH:        handler.NewBotHandler(accountStore, auditStore, activationSvc, hub, logger.With("component", "bot_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		cfg:         cfg,
		logger:      logger,
	}
}

// SessionRegistry returns the registry so main can own its sweep lifecycle.
func (s *Server) SessionRegistry() *session.Registry {
	return s.registry
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// EventHub returns the ops event hub.
func (s *Server) EventHub() *events.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Health check is the only unauthenticated route.
	mux.HandleFunc("GET /health", s.statsH.Health)

	// Everything else sits behind the shared-secret gate, enforced here
	// once rather than per handler.
	gated := http.NewServeMux()
	gated.Handle("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	gated.HandleFunc("POST /api/auth/verify_session", s.authH.VerifySession)
	gated.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	gated.HandleFunc("GET /api/stats/online", s.statsH.Online)

	gated.HandleFunc("GET /api/bot/accounts/{user_id}", s.botH.GetAccount)
	gated.HandleFunc("POST /api/bot/accounts", s.botH.Register)
	gated.HandleFunc("POST /api/bot/activate", s.botH.Activate)

	gated.HandleFunc("GET /ws", events.Handler(s.hub, s.logger.With("component", "events")))

	apiKeyMw := middleware.RequireAPIKey(s.cfg.APISecret)
	mux.Handle("/", apiKeyMw(gated))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
