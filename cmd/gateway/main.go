package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seesay/image-service/internal/ban"
	"github.com/seesay/image-service/internal/compensate"
	"github.com/seesay/image-service/internal/db"
	"github.com/seesay/image-service/internal/gateway"
	"github.com/seesay/image-service/internal/hub"
	"github.com/seesay/image-service/internal/imagestore"
	"github.com/seesay/image-service/internal/messaging"
	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/moderation"
	"github.com/seesay/image-service/internal/notify"
	"github.com/seesay/image-service/internal/pipeline"
	"github.com/seesay/image-service/internal/records"
)

func main() {
	log.Println("Starting SeeSay gateway...")

	listenAddr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	migrationsDir := "migrations"
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		migrationsDir = v
	}

	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		log.Fatal("GCS_BUCKET is required")
	}
	publicBase := os.Getenv("PUBLIC_BASE_URL")

	ctx := context.Background()

	// --- Postgres ---
	conn, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := db.Migrate(conn, migrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	recordStore := records.NewStore(conn)

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	banTTL := time.Duration(0) // permanent by default
	if v := os.Getenv("BAN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			banTTL = d
		}
	}
	banStore := ban.NewStore(rdb, banTTL)

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "seesay-gateway"
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Moderation gate ---
	gate, err := moderation.NewVisionGate(ctx)
	if err != nil {
		log.Fatalf("failed to create Vision client: %v", err)
	}

	// --- Image store ---
	images, err := imagestore.NewGCSStore(ctx, bucket, publicBase)
	if err != nil {
		log.Fatalf("failed to create GCS client: %v", err)
	}

	notifier := notify.NewNATSNotifier(natsClient)
	comp := compensate.NewStore(recordStore, recordStore, banStore)
	controller := pipeline.NewController(gate, images, recordStore, comp, natsClient, notifier)

	// --- WebSocket hub ---
	hubConfig := hub.DefaultConfig()
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hubConfig.MaxConnections = n
		}
	}
	h := hub.NewHub(hubConfig, natsClient)
	if err := h.Start(); err != nil {
		log.Fatalf("failed to start hub: %v", err)
	}

	handler := gateway.NewHandler(controller, banStore, natsClient, h.Count)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleUpgrade)
	mux.HandleFunc("/api/check", handler.HandleCheck)
	mux.HandleFunc("/api/broadcast", handler.HandleBroadcast)
	mux.HandleFunc("/health", handler.HandleHealth)
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("SeeSay gateway running")
		log.Printf("  listen_addr:     %s", listenAddr)
		log.Printf("  nats_url:        %s", natsConfig.URL)
		log.Printf("  redis_addr:      %s", redisAddr)
		log.Printf("  gcs_bucket:      %s", bucket)
		log.Printf("  public_base_url: %s", publicBase)
		log.Printf("  max_connections: %d", hubConfig.MaxConnections)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	h.Shutdown()
	natsClient.Close()
	gate.Close()
	images.Close()
	rdb.Close()
	conn.Close()
	log.Println("gateway stopped")
}
