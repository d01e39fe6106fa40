// creatord server - creator-discovery API, background pipeline workers, and
// progress streaming.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/creatorindex/creatord/pkg/api"
	"github.com/creatorindex/creatord/pkg/brightdata"
	"github.com/creatorindex/creatord/pkg/config"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/events"
	"github.com/creatorindex/creatord/pkg/fitscore"
	"github.com/creatorindex/creatord/pkg/index"
	"github.com/creatorindex/creatord/pkg/jobs"
	"github.com/creatorindex/creatord/pkg/pipeline"
	"github.com/creatorindex/creatord/pkg/providers"
	"github.com/creatorindex/creatord/pkg/rerank"
	"github.com/creatorindex/creatord/pkg/search"
	"github.com/creatorindex/creatord/pkg/vectorstore"
	"github.com/creatorindex/creatord/pkg/version"
)

const providerTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	workerCount := flag.Int("workers",
		4, "Number of background job workers")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	slog.Info("starting creatord",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	store := jobs.NewStore(cfg.Queues, cfg.EventHistoryLimit, cfg.MaxRetainedJobs)
	bus := events.NewBroadcaster()

	var vstore *vectorstore.Store
	if cfg.VectorStore.Addr != "" {
		vstore, err = vectorstore.NewWithCollections(cfg.VectorStore.Addr,
			cfg.VectorStore.ProfileCollection, cfg.VectorStore.PostsCollection)
		if err != nil {
			log.Fatalf("Failed to connect to vector store: %v", err)
		}
		defer vstore.Close()
		slog.Info("connected to vector store", "addr", cfg.VectorStore.Addr)
	} else {
		slog.Warn("no vector store configured; search endpoints will fail until one is")
	}

	var embedding *providers.EmbeddingClient
	if cfg.Embedding.Configured() {
		embedding = providers.NewEmbeddingClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, "", providerTimeout)
	}

	var searchEngine *search.Engine
	if vstore != nil {
		indexer := index.New(vstore, embedding)
		var embeddingClient search.EmbeddingClient
		if embedding != nil {
			embeddingClient = embedding
		}
		searchEngine = search.New(vstore, embeddingClient, indexer)
	}

	var reranker *rerank.Client
	if cfg.Reranker.Configured() {
		reranker = rerank.New(providers.NewRerankClient(cfg.Reranker.BaseURL, cfg.Reranker.APIKey, providerTimeout))
	}

	var refresher *brightdata.Worker
	if cfg.Brightdata.Configured() {
		datasetIDs := make(map[domain.Platform]string, len(cfg.Brightdata.DatasetIDsByPlatform))
		for platform, id := range cfg.Brightdata.DatasetIDsByPlatform {
			datasetIDs[domain.Platform(platform)] = id
		}
		client := providers.NewBrightdataClient(cfg.Brightdata.BaseURL, cfg.Brightdata.APIKey, datasetIDs, providerTimeout)
		refresher = brightdata.New(client, brightdata.Config{
			MaxURLsPerRequest: cfg.VendorMaxURLsPerRequest,
			MaxWorkers:        cfg.VendorMaxWorkers,
			PollInterval:      cfg.VendorPollInterval,
		})
	}

	imageFetcher := brightdata.NewImageFetcher(cfg.SSRFAllowedHosts, providerTimeout)

	var assessor *fitscore.Assessor
	if llm, ok := cfg.LLMProviders["default"]; ok && llm.BaseURL != "" {
		assessor = fitscore.New(providers.NewLLMClient(llm.BaseURL, llm.APIKey, llm.Model, providerTimeout))
	}

	orchestrator := &pipeline.Orchestrator{
		Reranker: reranker,
		Vendor:   refresher,
		Assessor: assessor,
	}
	if searchEngine != nil {
		orchestrator.SearchEngine = searchEngine
	}
	executor := &api.Executor{
		Orchestrator: orchestrator,
		Vendor:       refresher,
		Assessor:     assessor,
	}

	pool := jobs.NewPool(store, executor, bus, jobs.Config{
		WorkerCount: *workerCount,
		QueueNames:  cfg.Queues,
		JobTimeout:  cfg.JobTimeout,
	})
	pool.Start(ctx)
	slog.Info("worker pool started", "workers", *workerCount, "queues", cfg.Queues)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := store.EvictExpired(cfg.JobTTL); n > 0 {
					slog.Debug("evicted expired jobs", "count", n)
				}
			}
		}
	}()

	server := api.NewServer().
		SetOrchestrator(orchestrator).
		SetJobStore(store).
		SetWorkerPool(pool).
		SetEventBus(bus).
		SetImageFetcher(imageFetcher).
		SetQueueNames(cfg.Queues)
	if searchEngine != nil {
		server.SetSearchEngine(searchEngine)
	}
	if vstore != nil {
		server.SetVectorStore(vstore)
	}
	if err := server.ValidateWiring(); err != nil {
		slog.Warn("running with incomplete wiring", "error", err)
	}

	httpServer := &http.Server{Addr: ":" + httpPort, Handler: server.NewRouter()}
	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	pool.Stop()
	slog.Info("shutdown complete")
}
