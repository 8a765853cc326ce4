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

	"github.com/seesay/image-service/internal/caption"
	"github.com/seesay/image-service/internal/db"
	"github.com/seesay/image-service/internal/describe"
	"github.com/seesay/image-service/internal/messaging"
	"github.com/seesay/image-service/internal/metrics"
	"github.com/seesay/image-service/internal/notify"
	"github.com/seesay/image-service/internal/records"
)

func main() {
	log.Println("Starting SeeSay describer...")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}
	publicBase := os.Getenv("PUBLIC_BASE_URL")

	ctx := context.Background()

	// --- Postgres ---
	conn, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	recordStore := records.NewStore(conn)

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "seesay-describer"
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Caption model ---
	captionConfig := caption.Config{
		APIKey:  apiKey,
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	}
	describer, err := caption.NewOpenAIDescriber(captionConfig)
	if err != nil {
		log.Fatalf("failed to create caption client: %v", err)
	}

	notifier := notify.NewNATSNotifier(natsClient)
	stage := describe.NewStage(describer, recordStore, notifier, publicBase)

	workerConfig := describe.DefaultWorkerConfig()
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workerConfig.PoolSize = n
		}
	}
	worker := describe.NewWorker(stage, workerConfig)
	worker.Start(ctx, workerConfig.PoolSize)

	if err := natsClient.SubscribeTickets(worker.Submit); err != nil {
		log.Fatalf("failed to subscribe to tickets: %v", err)
	}

	// Metrics endpoint.
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("SeeSay describer running")
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  worker_pool:     %d", workerConfig.PoolSize)
	log.Printf("  public_base_url: %s", publicBase)
	log.Printf("  metrics_addr:    %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}

	// The NATS drain is asynchronous; the worker drops any ticket that
	// slips through after Stop.
	natsClient.Close()
	worker.Stop()
	conn.Close()
	log.Println("describer stopped")
}
