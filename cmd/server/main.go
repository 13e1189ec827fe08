package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"flash-study/internal/api"
	"flash-study/internal/auth"
	"flash-study/internal/config"
	"flash-study/internal/db"
	"flash-study/internal/generation"
	"flash-study/internal/logger"
	"flash-study/internal/ocr"
	"flash-study/internal/scheduler"
	"flash-study/internal/services"
)

func main() {
	cfg := config.Load()

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		appLog.Fatal("open database", "path", cfg.Database, "error", err)
	}
	defer conn.Close()

	cache := newCache(ctx, cfg, appLog)
	orchestrator := generation.NewOrchestrator(cache, appLog,
		generation.NewCohereProvider(cfg.CohereKey, cfg.CohereEndpoint, nil),
		generation.NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint),
		generation.NewHuggingFaceProvider(cfg.HuggingFaceKey, cfg.HuggingFaceEndpoint, nil),
	)
	appLog.Info("generation providers", "enabled", orchestrator.EnabledProviders())

	ocrService := ocr.New(ocrConfig(cfg), appLog)

	sched := scheduler.New()
	sets := services.NewStudySetService(conn)
	flashcards := services.NewFlashcardService(conn, sets, sched)
	profiles := services.NewProfileService(conn)
	stats := services.NewStatsService(conn)
	payments := services.NewPaymentService(conn, profiles, services.PaystackConfig{
		SecretKey:     cfg.PaystackSecretKey,
		BaseURL:       cfg.PaystackBaseURL,
		CallbackURL:   cfg.PaystackCallbackURL,
		MonthlyAmount: cfg.MonthlyAmount,
		YearlyAmount:  cfg.YearlyAmount,
	}, nil, appLog)
	documents := services.NewDocumentService(conn, cfg.UploadDir)
	extraction := services.NewExtractionService(ocrService, appLog)
	ingestion := services.NewIngestionService(extraction, orchestrator, flashcards, stats)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if !verifier.Enabled() {
		appLog.Warn("JWT_SECRET is not set; study sets, stats and payments will reject every request")
	}

	server := api.NewServer(api.Services{
		Generator:  orchestrator,
		Sets:       sets,
		Flashcards: flashcards,
		Profiles:   profiles,
		Stats:      stats,
		Payments:   payments,
		Documents:  documents,
		Extraction: extraction,
		Ingestion:  ingestion,
	}, verifier, appLog)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	})

	mux := http.NewServeMux()
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("shutdown", "error", err)
		}
	}()

	appLog.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Fatal("server failed", "error", err)
	}
}

// newCache prefers a shared Redis cache and falls back to process memory
// when REDIS_ADDR is unset or unreachable.
func newCache(ctx context.Context, cfg config.Config, appLog *logger.Logger) generation.Cache {
	if cfg.RedisAddr == "" {
		return generation.NewMemoryCache(cfg.CacheTTL)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		appLog.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return generation.NewMemoryCache(cfg.CacheTTL)
	}
	appLog.Info("using redis generation cache", "addr", cfg.RedisAddr)
	return generation.NewRedisCache(rdb, cfg.CacheTTL, appLog)
}

// ocrConfig reads images with Z.AI when configured, otherwise with the
// OpenAI chat model. Audio always goes to OpenAI transcription.
func ocrConfig(cfg config.Config) ocr.Config {
	out := ocr.Config{
		TranscribeKey:     cfg.OpenAIKey,
		TranscribeBaseURL: cfg.OpenAIEndpoint,
		TranscribeModel:   cfg.OpenAITranscribeModel,
	}
	if config.IsConfiguredKey(cfg.ZAIKey) {
		out.VisionKey = cfg.ZAIKey
		out.VisionBaseURL = cfg.ZAIBaseURL
		out.VisionModel = cfg.ZAIModel
	} else {
		out.VisionKey = cfg.OpenAIKey
		out.VisionBaseURL = cfg.OpenAIEndpoint
		out.VisionModel = cfg.OpenAIModel
	}
	return out
}
