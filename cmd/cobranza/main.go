package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/GitHub-Roomie/cobranza/internal/api"
	"github.com/GitHub-Roomie/cobranza/internal/config"
	"github.com/GitHub-Roomie/cobranza/internal/dialogue"
	"github.com/GitHub-Roomie/cobranza/internal/provider/openai"
	"github.com/GitHub-Roomie/cobranza/internal/reconcile"
	"github.com/GitHub-Roomie/cobranza/internal/server"
	"github.com/GitHub-Roomie/cobranza/internal/storage/sqlite"
	"github.com/GitHub-Roomie/cobranza/internal/telemetry"
	"github.com/GitHub-Roomie/cobranza/internal/telephony"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("cobranza", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(os.Getenv("COBRANZA_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	generator := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature)

	sessions := dialogue.NewStore()
	controller, err := dialogue.NewController(sessions, generator, dialogue.DefaultClassifier(), logger, dialogue.ControllerConfig{
		HistoryWindow:    cfg.Dialogue.HistoryWindow,
		MaxContextTokens: cfg.Dialogue.MaxContextTokens,
	})
	if err != nil {
		log.Fatalf("Failed to create dialogue controller: %v", err)
	}

	twilioConfigured := cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != ""

	var caller api.CallPlacer
	var fetcher reconcile.CallFetcher
	if twilioConfigured {
		client := telephony.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
		caller = client
		fetcher = client
	} else {
		logger.Warn("twilio credentials missing, outbound calls disabled")
	}

	reconciler := reconcile.New(store, sessions, fetcher, logger)

	handlers := api.New(controller, sessions, store, reconciler, caller, api.Config{
		Voice:            telephony.VoiceConfig{Name: cfg.Voice.Name, Language: cfg.Voice.Language},
		PublicBaseURL:    cfg.Server.PublicBaseURL,
		NotifyURL:        cfg.Notify.WebhookURL,
		TwilioConfigured: twilioConfigured,
		OpenAIConfigured: cfg.OpenAI.APIKey != "",
	}, logger)

	srv := server.New(cfg.Server.Port, logger)
	handlers.RegisterRoutes(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
