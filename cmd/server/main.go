package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teamhub/assessment-engine/internal/auth"
	"github.com/teamhub/assessment-engine/internal/cache"
	"github.com/teamhub/assessment-engine/internal/config"
	"github.com/teamhub/assessment-engine/internal/events"
	"github.com/teamhub/assessment-engine/internal/handlers"
	"github.com/teamhub/assessment-engine/internal/repositories/postgres"
	"github.com/teamhub/assessment-engine/internal/scorer"
	"github.com/teamhub/assessment-engine/internal/services"
	"github.com/teamhub/assessment-engine/internal/utils"
	"github.com/teamhub/assessment-engine/internal/validator"
	"github.com/teamhub/assessment-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.NewDefaultLogger().Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(utils.LoggerOptions{
		Level:       cfg.Log.Level,
		Development: !cfg.IsProduction(),
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	slogLogger := utils.ToSlogLogger(logger)

	if err := run(cfg, logger); err != nil {
		slogLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogLogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}
	if cfg.AutoMigrate {
		if err := postgres.AutoMigrate(ctx, db); err != nil {
			return err
		}
	}

	cacheService := cache.NewNoopCache()
	if redisClient, err := pkg.NewRedisClient(ctx, cfg); err != nil {
		logger.Warn("Redis unavailable, running without cache", "error", err)
	} else {
		defer redisClient.Close()
		cacheService = cache.NewRedisCache(redisClient, logger, "assessment:")
	}

	publisher, err := cfg.Events.NewPublisher(slogLogger)
	if err != nil {
		logger.Error("Failed to create event publisher, falling back to mock", "error", err)
		publisher = events.NewMockEventPublisher(slogLogger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", "error", err)
		}
	}()

	var aiScorer scorer.Scorer
	if cfg.Scorer.Endpoint != "" {
		aiScorer = scorer.NewHTTPScorer(scorer.Config{
			Endpoint:     cfg.Scorer.Endpoint,
			TokenURL:     cfg.Scorer.TokenURL,
			ClientID:     cfg.Scorer.ClientID,
			ClientSecret: cfg.Scorer.ClientSecret,
			Scopes:       cfg.Scorer.Scopes,
			Model:        cfg.Scorer.Model,
			Timeout:      cfg.Scorer.Timeout,
		})
	} else {
		logger.Warn("No scorer endpoint configured, AI suggestions disabled")
	}

	serviceManager := services.NewServiceManager(services.Dependencies{
		Repo:      postgres.NewRepository(db),
		Validator: validator.New(),
		Cache:     cacheService,
		CacheTTL:  cfg.CacheTTL,
		Events:    services.NewEventService(publisher, slogLogger),
		Scorer:    aiScorer,
		Logger:    slogLogger,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ContextLogger(logger))
	router.Use(utils.LoggerMiddleware(logger))
	router.Use(handlers.SecureHeaders(!cfg.IsProduction()))

	handlers.NewHandlerManager(serviceManager, logger).
		SetupRoutes(router, auth.Middleware(newVerifier(cfg.Auth, logger), logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newVerifier(cfg config.AuthConfig, logger utils.Logger) auth.Verifier {
	if strings.EqualFold(cfg.Provider, "casdoor") {
		logger.Info("Verifying tokens with Casdoor", "endpoint", cfg.CasdoorEndpoint)
		return auth.NewCasdoorVerifier(auth.CasdoorConfig{
			Endpoint:     cfg.CasdoorEndpoint,
			ClientID:     cfg.CasdoorClientID,
			ClientSecret: cfg.CasdoorClientSecret,
			Certificate:  cfg.CasdoorCertificate,
			Organization: cfg.CasdoorOrganization,
			Application:  cfg.CasdoorApplication,
		})
	}
	return auth.NewHMACVerifier(cfg.JWTSecret)
}
