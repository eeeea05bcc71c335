package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phofmann/floodgate/internal/auth"
	"github.com/phofmann/floodgate/internal/background"
	"github.com/phofmann/floodgate/internal/config"
	"github.com/phofmann/floodgate/internal/database"
	"github.com/phofmann/floodgate/internal/handlers"
	middlewareCustom "github.com/phofmann/floodgate/internal/middleware"
	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/otp"
	"github.com/phofmann/floodgate/internal/repositories"
	"github.com/phofmann/floodgate/internal/routes"
	"github.com/phofmann/floodgate/internal/services"
	pkghttp "github.com/phofmann/floodgate/pkg/http"
	pkglogger "github.com/phofmann/floodgate/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Run migrations unless explicitly disabled
	if os.Getenv("SKIP_MIGRATIONS") != "true" {
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := database.Migrate(migrateCtx, cfg.Database.DSN()); err != nil {
			migrateCancel()
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		migrateCancel()
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	floodRepo := repositories.NewFloodEventRepository(db)
	accountRepo := repositories.NewAccountRepository(db)
	codeRepo := repositories.NewEmergencyCodeRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	floodService, err := services.NewFloodService(floodRepo, models.DefaultFloodRules(), logger)
	if err != nil {
		logger.Error("failed to initialize flood service", slog.Any("error", err))
		os.Exit(1)
	}

	codeService := services.NewEmergencyCodeService(codeRepo, cfg.TwoFactor.EmergencyCodeCount, logger)
	engine := otp.NewEngine(cfg.TwoFactor.Issuer)

	twoFactorService := services.NewTwoFactorService(
		accountRepo,
		codeService,
		engine,
		auditLogger,
		logger,
		services.TwoFactorConfig{
			SecretLength: cfg.TwoFactor.SecretLength,
			Discrepancy:  cfg.TwoFactor.Discrepancy,
		},
	)

	emailService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Challenge tokens and timing equalization for the second-factor step
	challengeManager := auth.NewChallengeManager(cfg.TwoFactor.ChallengeSecret, cfg.TwoFactor.ChallengeExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.TwoFactor.TimingDelayBaseMs,
		RandomDelayMs: cfg.TwoFactor.TimingDelayRandomMs,
	})

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	accountHandler := handlers.NewAccountHandler(floodService, emailService, cfg.Email.ResetURLBase, ipConfig, logger)
	twoFactorHandler := handlers.NewTwoFactorHandler(
		twoFactorService,
		challengeManager,
		floodService,
		timingDelay,
		cfg.TwoFactor.ChallengeExpiry,
		ipConfig,
		logger,
	)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(floodService, logger, cfg.Flood.CleanupInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, accountHandler, twoFactorHandler, middlewareCustom.DefaultPublicRateLimit())

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
