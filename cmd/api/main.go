// Command api serves the account API: registration, login and Discord
// verification on top of the game database.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/accounts"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/claims"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/discord"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	routes_health "github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/routes/health"
	routes_user "github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/routes/user"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/storage"
)

func main() {
	// Load .env file first
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}

	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := storage.InitializeAPIConfiguration()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting account API", slog.String("environment", cfg.Environment))

	db, err := storage.InitDB(cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	var notifier accounts.Notifier = accounts.LogNotifier{Logger: logger}
	if cfg.DiscordBotToken != "" {
		bot, err := discord.NewBotClient(cfg.DiscordAPIURL, cfg.DiscordBotToken, cfg.VerificationBaseURL, logger)
		if err != nil {
			log.Fatalf("Failed to create Discord bot client: %v", err)
		}
		notifier = bot
	} else {
		logger.Warn("DISCORD_BOT_TOKEN not set, verification links are only logged")
	}

	issuer := claims.NewIssuer(cfg.JWT)
	service := accounts.NewService(db, issuer, notifier, accounts.LogMailer{Logger: logger}, logger, accounts.Config{
		EnforcePasswordPolicy: !cfg.IsDevelopment(),
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middlewares.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares.Metrics("api"))
	r.Use(middlewares.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health", routes_health.Handler(map[string]routes_health.Check{
		"database": routes_health.Database(db),
	}, logger))
	r.Handle("/metrics", promhttp.Handler())

	routes_user.NewHandler(service).Mount(r, middlewares.AuthMiddleware(issuer, logger))

	serve(logger, &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	})

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// serve runs srv until SIGINT or SIGTERM, then drains it.
func serve(logger *slog.Logger, srv *http.Server) {
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
