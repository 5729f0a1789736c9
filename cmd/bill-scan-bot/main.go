package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/api"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/api/handlers"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/bot"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/repository"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/service"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/telegram"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/auth"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/config"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/logger"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting Bill Scan Bot")

	if cfg.JWT.SecretKey == config.DefaultJWTSecret {
		appLogger.Warn("JWT_SECRET_KEY is using the insecure default, override it in production")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(cfg.Database.URL()); err != nil {
		appLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	userRepo := repository.NewUserRepository(db, appLogger)
	sessionRepo := repository.NewSessionRepository(db, appLogger)
	receiptRepo := repository.NewReceiptRepository(db, appLogger)

	// Services
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	sessionService := service.NewSessionService(sessionRepo, userRepo, appLogger)

	extractionService, err := service.NewExtractionService(&cfg.OpenAI, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize extraction service", zap.Error(err))
	}

	// REST surface
	authHandler := handlers.NewAuthHandler(authService, appLogger)
	receiptHandler := handlers.NewReceiptHandler(receiptRepo, extractionService, cfg.OpenAI.APIKey, appLogger)
	app := api.SetupRouter(authHandler, receiptHandler, jwtManager, appLogger)

	// Chat surface. A missing bot token disables it but leaves the REST API
	// up.
	if cfg.Telegram.Token == "" {
		appLogger.Warn("TELEGRAM_BOT_TOKEN not set, chat surface disabled")
	} else {
		client := telegram.NewClient(cfg.Telegram.Token, appLogger)
		dispatcher := bot.NewDispatcher(client, sessionService, receiptRepo, extractionService, cfg.OpenAI.APIKey, appLogger)
		poller := bot.NewPoller(client, dispatcher, cfg.Telegram.PollTimeout, cfg.Telegram.RetryDelay, appLogger)

		go func() {
			appLogger.Info("Bot polling started", zap.Int("timeout_sec", cfg.Telegram.PollTimeout))
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				appLogger.Error("Bot polling stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	cancel()
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
