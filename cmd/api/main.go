package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rxassist/pharmacy-assistant/cmd/mainconfig"
	"github.com/rxassist/pharmacy-assistant/internal/api/router"
	"github.com/rxassist/pharmacy-assistant/internal/compliance"
	appconfig "github.com/rxassist/pharmacy-assistant/internal/config"
	"github.com/rxassist/pharmacy-assistant/internal/conversation"
	"github.com/rxassist/pharmacy-assistant/internal/observability/metrics"
	"github.com/rxassist/pharmacy-assistant/internal/pharmacy"
	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

func main() {
	// Load .env in development; missing file is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pharmacy-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"records_backend", cfg.RecordsBackend,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Record store: seeded in-memory by default, DynamoDB when configured.
	var records pharmacy.RecordStore
	switch cfg.RecordsBackend {
	case "dynamodb":
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		records = pharmacy.NewDynamoStore(dynamoClient, cfg.PatientsTable, cfg.MedicationsTable, logger)
	default:
		records = pharmacy.NewSeededStore()
	}

	resolver := pharmacy.NewSafetyResolver(records, logger)
	registry := conversation.NewPharmacyRegistry(resolver, records, logger)

	seeder := conversation.NewSessionSeeder(patientDirectory(records))

	// Session store: in-process by default, Redis for multi-replica setups.
	var sessions conversation.SessionStore
	switch cfg.SessionBackend {
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		sessions = conversation.NewRedisSessionStore(redisClient, seeder)
	default:
		sessions = conversation.NewMemorySessionStore(seeder)
	}

	llm := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	disclaimer := compliance.NewDisclaimerService(compliance.DefaultDisclaimerConfig())
	conversationMetrics := metrics.NewConversationMetrics(nil)

	orchestrator := conversation.NewOrchestrator(llm, registry, sessions, disclaimer, conversationMetrics, logger,
		conversation.OrchestratorConfig{
			Model:       cfg.BedrockModelID,
			MaxTokens:   int32(cfg.MaxOutputTokens),
			MaxTurns:    cfg.MaxToolTurns,
			TurnTimeout: cfg.LLMTurnTimeout,
		})

	chatHandler := conversation.NewHandler(orchestrator, sessions, conversation.HandlerLimits{
		MaxInputLength:        cfg.MaxInputLength,
		MaxMessagesPerSession: cfg.MaxMessagesPerSession,
		MaxSessions:           cfg.MaxSessions,
	}, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRatePerSecond:  cfg.ChatRatePerSecond,
		ChatBurst:          cfg.ChatBurst,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays zero: chat responses are long-lived SSE streams.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// patientDirectory adapts a RecordStore for the session seeder, which only
// needs patient existence checks.
func patientDirectory(store pharmacy.RecordStore) conversation.PatientDirectory {
	if dir, ok := store.(conversation.PatientDirectory); ok {
		return dir
	}
	return nil
}
