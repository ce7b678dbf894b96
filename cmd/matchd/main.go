package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studylink/match-app/internal/api"
	"github.com/studylink/match-app/internal/connection"
	"github.com/studylink/match-app/internal/messaging"
	"github.com/studylink/match-app/internal/profile"
	"github.com/studylink/match-app/internal/ratelimit"
	"github.com/studylink/match-app/internal/session"
	"github.com/studylink/match-app/internal/storage"
)

func main() {
	log.Println("Starting StudyLink match API...")

	listenAddr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}
	databaseURL := "postgres://localhost:5432/studylink?sslmode=disable"
	if v := os.Getenv("DATABASE_URL"); v != "" {
		databaseURL = v
	}
	migrationsURL := "file://migrations"
	if v := os.Getenv("MIGRATIONS_URL"); v != "" {
		migrationsURL = v
	}
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	// --- PostgreSQL ---
	db, err := storage.Open(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	caps, err := storage.Migrate(db, migrationsURL)
	if err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	profiles := profile.NewStore(db, caps)
	connections := connection.NewStore(db)

	// --- Redis ---
	sessions, err := session.NewStore(redisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	limiter := ratelimit.NewLimiter(sessions.Client())

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "studylink-matchd"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	server := api.NewServer(profiles, connections, sessions, limiter, natsClient)
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: server.Router(),
	}

	log.Printf("StudyLink match API running")
	log.Printf("  listen_addr:    %s", listenAddr)
	log.Printf("  schema_version: %d", caps.SchemaVersion)
	log.Printf("  redis_addr:     %s", redisAddr)
	log.Printf("  nats_url:       %s", natsConfig.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}

		natsClient.Close()
		if err := sessions.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
