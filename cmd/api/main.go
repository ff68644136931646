package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-ai-relay/internal/aiconfig"
	"github.com/wolfman30/whatsapp-ai-relay/internal/api/router"
	appconfig "github.com/wolfman30/whatsapp-ai-relay/internal/config"
	"github.com/wolfman30/whatsapp-ai-relay/internal/conversation"
	"github.com/wolfman30/whatsapp-ai-relay/internal/http/handlers"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/internal/realtime"
	"github.com/wolfman30/whatsapp-ai-relay/internal/session"
	"github.com/wolfman30/whatsapp-ai-relay/internal/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg, err := appconfig.FromEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting whatsapp-ai-relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"gemini_model", cfg.GeminiModel,
		"session_history_limit", cfg.SessionHistoryLimit,
	)

	metricsHandler, relayMetrics := setupMetrics(cfg.MetricsEnabled)

	gemini := conversation.NewGeminiLLMClient(cfg.GeminiModel)
	defer func() {
		if err := gemini.Close(); err != nil {
			logger.Warn("failed to close gemini client", "error", err)
		}
	}()

	app := buildApp(cfg, logger, gemini, metricsHandler, relayMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.inbox.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := app.inbox.Shutdown(shutdownCtx); err != nil {
		logger.Warn("inbox did not drain before shutdown deadline", "error", err)
	}

	logger.Info("server stopped")
}

type application struct {
	handler http.Handler
	inbox   *conversation.Inbox
	relay   *conversation.Relay
	holder  *aiconfig.Holder
	store   *session.MemoryStore
	hub     *realtime.Hub
}

func setupMetrics(enabled bool) (http.Handler, *metrics.RelayMetrics) {
	if !enabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewRelayMetrics(reg)
}

func buildApp(cfg *appconfig.Config, logger *logging.Logger, llm conversation.LLMClient, metricsHandler http.Handler, m *metrics.RelayMetrics) *application {
	holder := aiconfig.NewHolder()
	store := session.NewMemoryStore(session.WithMaxTurns(cfg.SessionHistoryLimit))

	hub := realtime.NewHub(
		realtime.WithLogger(logger.Component("realtime")),
		realtime.WithMetrics(m),
		realtime.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	)

	client := whatsapp.NewClient(cfg.WhatsAppPhoneNumberID,
		whatsapp.WithGraphAPIBase(cfg.WhatsAppGraphAPIBase),
		whatsapp.WithTimeout(cfg.WhatsAppHTTPTimeout),
	)

	relay := conversation.NewRelay(holder, store, llm, client, hub, logger.Component("relay"),
		conversation.WithBaselinePersona(cfg.BaselinePersona),
		conversation.WithAssistantLabel(cfg.AssistantLabel),
		conversation.WithModel(cfg.GeminiModel),
		conversation.WithCompletionTimeout(cfg.AIRequestTimeout),
		conversation.WithUserSerialization(cfg.SerializePerUser),
		conversation.WithRelayMetrics(m),
	)

	inbox := conversation.NewInbox(relay, logger.Component("inbox"),
		conversation.WithInboxWorkers(cfg.WorkerCount),
		conversation.WithInboxBuffer(cfg.InboxBuffer),
	)

	webhookOpts := []whatsapp.WebhookOption{
		whatsapp.WithWebhookLogger(logger.Component("webhook")),
		whatsapp.WithWebhookMetrics(m),
	}
	if cfg.WhatsAppAppSecret != "" {
		webhookOpts = append(webhookOpts, whatsapp.WithAppSecret(cfg.WhatsAppAppSecret))
	}
	webhook := whatsapp.NewWebhookHandler(cfg.WebhookVerifyToken, func(ctx context.Context, msg whatsapp.InboundMessage) {
		if err := inbox.Submit(ctx, msg); err != nil {
			logger.Error("failed to enqueue inbound message", "user_id", msg.From, "message_id", msg.MessageID, "error", err)
		}
	}, webhookOpts...)

	handler := router.New(&router.Config{
		Logger:             logger,
		Webhook:            webhook,
		AIConfig:           handlers.NewAIConfigHandler(holder, logger.Component("admin")),
		SendMessage:        handlers.NewSendMessageHandler(handlers.SendMessageConfig{Sender: client, Logger: logger.Component("admin"), Metrics: m}),
		Sessions:           handlers.NewSessionHandler(store),
		Realtime:           hub,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	return &application{
		handler: handler,
		inbox:   inbox,
		relay:   relay,
		holder:  holder,
		store:   store,
		hub:     hub,
	}
}
