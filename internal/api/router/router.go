package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/whatsapp-ai-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-ai-relay/internal/http/middleware"
	"github.com/wolfman30/whatsapp-ai-relay/internal/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhook            *whatsapp.WebhookHandler
	AIConfig           *handlers.AIConfigHandler
	SendMessage        *handlers.SendMessageHandler
	Sessions           *handlers.SessionHandler
	Realtime           http.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSOptions{AllowedOrigins: cfg.CORSAllowedOrigins}))
	}

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Meta calls these directly.
	if cfg.Webhook != nil {
		r.Get("/webhook", cfg.Webhook.HandleVerification)
		r.Post("/webhook", cfg.Webhook.HandleInbound)
	}

	// Operator dashboard endpoints.
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.NoCache)
		if cfg.AIConfig != nil {
			admin.Post("/assign-ai", cfg.AIConfig.Assign)
			admin.Get("/assign-ai", cfg.AIConfig.Status)
		}
		if cfg.SendMessage != nil {
			admin.Post("/send-message", cfg.SendMessage.SendMessage)
		}
		if cfg.Sessions != nil {
			admin.Get("/sessions/{userID}", cfg.Sessions.GetHistory)
		}
	})

	if cfg.Realtime != nil {
		r.Get("/ws", cfg.Realtime.ServeHTTP)
	}

	return r
}
