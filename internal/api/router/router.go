package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rxassist/pharmacy-assistant/internal/conversation"
	httpmiddleware "github.com/rxassist/pharmacy-assistant/internal/http/middleware"
	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ChatRatePerSecond/ChatBurst bound how fast a single client may start
	// model streams. Zero disables rate limiting.
	ChatRatePerSecond float64
	ChatBurst         int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.ChatHandler.Health)
	r.Get("/sessions", cfg.ChatHandler.Sessions)

	r.Group(func(chat chi.Router) {
		if cfg.ChatRatePerSecond > 0 && cfg.ChatBurst > 0 {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatRatePerSecond, cfg.ChatBurst))
		}
		chat.Post("/chat", cfg.ChatHandler.Chat)
	})

	if cfg.MetricsHandler != nil {
		r.Get("/metrics", cfg.MetricsHandler.ServeHTTP)
	}

	return r
}
