package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	ariadapter "github.com/ClareAI/astra-call-bridge/internal/adapters/ari"
	"github.com/ClareAI/astra-call-bridge/internal/config"
	"github.com/ClareAI/astra-call-bridge/internal/core/registry"
	"github.com/ClareAI/astra-call-bridge/internal/handler"
	"github.com/ClareAI/astra-call-bridge/internal/services/call"
	"github.com/ClareAI/astra-call-bridge/internal/services/transcribe"
	"github.com/ClareAI/astra-call-bridge/pkg/logger"
	"github.com/ClareAI/astra-call-bridge/pkg/redis"
	pkgtranscribe "github.com/ClareAI/astra-call-bridge/pkg/transcribe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file for local development if it exists. This will not
	// override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := config.LoadFromEnv()

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The control-plane connection is the one dependency the service
	// cannot run without.
	tel, err := ariadapter.Connect(ctx, ariadapter.Options{
		URL:          cfg.ARIURL,
		WebsocketURL: cfg.ARIWebsocketURL,
		Username:     cfg.ARIUsername,
		Password:     cfg.ARIPassword,
		Application:  cfg.ARIApplication,
	})
	if err != nil {
		logger.Base().Error("failed to connect to ARI", zap.Error(err))
		os.Exit(1)
	}
	defer tel.Close()

	reg := registry.New()
	callService := call.NewService(cfg, tel, reg)

	var publisher transcribe.Publisher
	if cfg.RedisEnabled {
		redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize redis, transcripts will not be broadcast", zap.Error(err))
		} else {
			publisher = redisSvc
			defer redisSvc.Close()
		}
	}

	var streamer pkgtranscribe.Streamer
	if aws, err := pkgtranscribe.NewAWSStreamer(ctx, cfg.AWSRegion); err != nil {
		logger.Base().Warn("failed to initialize transcribe streamer, transcription disabled", zap.Error(err))
	} else {
		streamer = aws
	}

	transcribeService := transcribe.NewService(reg, tel, callService, streamer, publisher, transcribe.Config{
		LanguageCode: cfg.TranscribeLanguage,
		SampleRateHz: cfg.TranscribeSampleRate,
	})
	callService.SetTranscriber(transcribeService)

	go callService.Run(ctx)

	router := mux.NewRouter()
	handlerManager := handler.NewHandlerManager(cfg, reg, tel, callService, transcribeService)
	handlerManager.SetupAllRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Base().Info("starting server",
			zap.String("addr", server.Addr),
			zap.String("ari_application", cfg.ARIApplication),
			zap.String("fixed_destination", cfg.FixedDestination),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Base().Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Base().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Active bridges must not outlive the controller.
	callService.Shutdown(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Base().Warn("http shutdown failed", zap.Error(err))
	}
	logger.Base().Info("shutdown complete")
}
