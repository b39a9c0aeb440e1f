package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/safar-labs/travelmate/app/db"
	appLogger "github.com/safar-labs/travelmate/app/logger"
	appMiddleware "github.com/safar-labs/travelmate/app/middleware"
	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/app/tracer"
	"github.com/safar-labs/travelmate/config"
	"github.com/safar-labs/travelmate/internal/api/auth"
	"github.com/safar-labs/travelmate/internal/api/catalog"
	"github.com/safar-labs/travelmate/internal/api/chat"
	"github.com/safar-labs/travelmate/internal/api/filters"
	generativeAI "github.com/safar-labs/travelmate/internal/api/generative_ai"
	"github.com/safar-labs/travelmate/internal/api/index"
	"github.com/safar-labs/travelmate/internal/api/session"
	"github.com/safar-labs/travelmate/internal/router"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails.
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	if err := loadJWTSecrets(); err != nil {
		logger.Error("Missing JWT signing secrets", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer.InitTracingAndMetrics()
	metrics.InitAppMetrics()

	// --- Database Setup ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Catalog & Index ---
	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		logger.Error("Failed to load place catalog", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Place catalog loaded",
		slog.Int("places", len(cat.Places)),
		slog.Int("cities", len(cat.Cities)))

	embedder, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize embedder", slog.Any("error", err))
		os.Exit(1)
	}

	ix, err := index.BuildOrLoad(ctx, cat, cfg.Catalog.Path, cfg.Catalog.EmbeddingsDir, embedder, logger)
	if err != nil {
		logger.Error("Failed to build catalog index", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Catalog index ready", slog.Int("documents", ix.Size()))

	aiClient, err := generativeAI.NewAIClient(ctx, cfg.AI.Model)
	if err != nil {
		logger.Error("Failed to initialize AI client", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Dependency Injection ---
	authRepo := auth.NewRepositoryImpl(pool, logger)
	authService := auth.NewServiceImpl(authRepo, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, logger)
	authHandler := auth.NewHandlerImpl(authService, logger)

	sessionRepo := session.NewRepositoryImpl(pool, logger)
	sessionService := session.NewServiceImpl(sessionRepo, logger)
	sessionHandler := session.NewHandlerImpl(sessionService, logger)

	chatRepo := chat.NewRepositoryImpl(pool, logger)
	retriever := chat.NewRetriever(ix, logger)
	extractor := filters.NewExtractor(cat.Cities, cat.Types)
	chatService := chat.NewServiceImpl(chatRepo, retriever, extractor, aiClient,
		cfg.AI.HistoryLimit, cfg.AI.MaxPlaces, cfg.AI.Temperature, logger)
	chatHandler := chat.NewHandlerImpl(chatService, logger)

	apiRouter := router.SetupRouter(&router.Config{
		AuthHandler:            authHandler,
		SessionHandler:         sessionHandler,
		ChatHandler:            chatHandler,
		AuthenticateMiddleware: appMiddleware.Authenticate,
	})

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Timeout(60 * time.Second))
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", apiRouter)

	// --- HTTP Server ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// loadJWTSecrets reads the token signing keys from the environment. The
// server refuses to start without them.
func loadJWTSecrets() error {
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		return errors.New("JWT_SECRET_KEY environment variable not set")
	}
	refreshSecret := os.Getenv("JWT_REFRESH_SECRET_KEY")
	if refreshSecret == "" {
		refreshSecret = secret
	}
	appMiddleware.JwtSecretKey = []byte(secret)
	appMiddleware.JwtRefreshSecretKey = []byte(refreshSecret)
	return nil
}

// newEmbedder selects the embedding backend from config. Gemini is the
// default; an OpenAI-compatible endpoint can be used instead.
func newEmbedder(ctx context.Context, cfg config.Config, logger *slog.Logger) (index.Embedder, error) {
	switch cfg.AI.Provider {
	case "openai":
		return generativeAI.NewOpenAIEmbedder(cfg.AI.OpenAIBaseURL, cfg.AI.EmbeddingModel, logger)
	default:
		return generativeAI.NewEmbeddingService(ctx, cfg.AI.EmbeddingModel, logger)
	}
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
