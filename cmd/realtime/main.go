package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"agora/realtime/internal/app"
	"agora/realtime/internal/broadcast"
	"agora/realtime/internal/config"
	"agora/realtime/internal/email"
	"agora/realtime/internal/metrics"
	"agora/realtime/internal/rooms"
	"agora/realtime/internal/search"
	"agora/realtime/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: could not load .env: %v", err)
	}

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db, store.Rules{
		MinimumPostLength: cfg.MinimumPostLength,
		PostRateLimit:     cfg.PostRateLimit,
	})

	registry, err := rooms.NewRedisRegistry(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer registry.Close()

	hub := broadcast.NewHub(registry)
	defer hub.Close()
	dataStore.SetNotifier(hub)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	mailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailService.IsConfigured() {
		log.Printf("Flag notices will be emailed via %s", cfg.SMTPHost)
	}

	alerts := app.NewAlerts(hub, cfg.MinimumTitleLength, cfg.MinimumPostLength, int(cfg.PostRateLimit/time.Second))
	service := app.NewService(cfg, dataStore, hub, alerts, searchService, mailService)
	socket := app.NewSocketServer(service, hub, registry, []byte(cfg.JWTSecret), cfg.CORSOrigin)

	mux := http.NewServeMux()
	mux.Handle("/ws", socket)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dataStore.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := registry.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// No ReadTimeout here: it would apply to long-lived websocket
	// connections and kill them.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Agora realtime listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
