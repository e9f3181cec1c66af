// Command portal serves the web portal: Discord sign-in, registration,
// verification and the signed-in pages.
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
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/apiclient"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/middlewares"
	routes_api "github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/routes/api"
	routes_auth "github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/routes/auth"
	routes_client "github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/routes/client"
	routes_health "github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/routes/health"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/session"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/storage"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/views"
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

	cfg, err := storage.InitializePortalConfiguration()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting web portal",
		slog.String("environment", cfg.Environment),
		slog.String("api_url", cfg.APIURL),
	)

	cache, err := storage.InitCache(cfg.CacheDSN)
	if err != nil {
		log.Fatalf("Failed to connect to cache: %v", err)
	}
	if cache != nil {
		defer cache.Close()
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("CACHE_DSN not set, signed-out sessions stay valid until they expire")
	}

	revocations := session.NewRevocations(cache)
	store := session.NewStore(cfg.SessionSecret, cfg.SessionMaxAge, cfg.IsProduction(), revocations)

	// short-lived cookie carrying the OAuth state between signin and callback
	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}

	client := apiclient.New(cfg.APIURL)
	linker := session.NewLinker(client, logger)

	renderer, err := views.New()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middlewares.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares.Metrics("portal"))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Handle("/static/*", views.Static())
	r.Get("/health", routes_health.Handler(map[string]routes_health.Check{
		"account_api": client.Ping,
		"cache":       revocations.Ping,
	}, logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middlewares.Session(store, cfg.IdleTimeout, logger))
		r.Use(middlewares.Gate)

		routes_auth.NewHandler(cfg.OAuthConfig(), cfg.Discord.APIURL, cookies, store, linker, logger).Mount(r)
		routes_api.NewHandler(client, store, linker, logger).Mount(r)
		routes_client.NewHandler(renderer, client, store, linker, logger).Mount(r)
	})

	serve(logger, &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	})
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
