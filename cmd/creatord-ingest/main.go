// creatord-ingest runs the resumable batch ingestion pipeline over one
// platform's CSV export. Re-run the same command to resume after the
// external batch API's completion window; state lives under -workdir.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/creatorindex/creatord/pkg/ingest"
	"github.com/creatorindex/creatord/pkg/providers"
)

func main() {
	csvPath := flag.String("csv", "", "Path to the platform CSV export (required)")
	promptPath := flag.String("prompt", "", "Path to the labeling prompt template (required)")
	workDir := flag.String("workdir", "./ingest-work", "Directory for per-dataset state and outputs")
	platform := flag.String("platform", "", "Platform hint when rows carry no platform field (instagram|tiktok)")
	chunkSize := flag.Int("chunk-size", 20000, "Rows per batch chunk")
	minTextChars := flag.Int("min-text-chars", 40, "Language samples shorter than this are kept unconditionally")
	pollInterval := flag.Duration("poll-interval", 30*time.Second, "Batch status poll interval")
	maxPollAttempts := flag.Int("max-poll-attempts", 10, "Poll attempts per invocation before halting")
	force := flag.Bool("force", false, "Ignore cached step outputs and recompute")
	flag.Parse()

	if *csvPath == "" || *promptPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	baseURL := os.Getenv("BATCH_API_BASE_URL")
	apiKey := os.Getenv("BATCH_API_KEY")
	if baseURL == "" {
		log.Fatal("BATCH_API_BASE_URL must be set")
	}
	client := providers.NewBatchAPIClient(baseURL, apiKey, 2*time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := ingest.Ingest(ctx, *csvPath, *promptPath, client, ingest.Options{
		WorkDir:         *workDir,
		PlatformHint:    *platform,
		ChunkSize:       *chunkSize,
		MinTextChars:    *minTextChars,
		PollInterval:    *pollInterval,
		MaxPollAttempts: *maxPollAttempts,
		Force:           *force,
	})
	if err != nil {
		log.Fatalf("ingestion failed: %v", err)
	}

	if !result.Complete {
		slog.Info("ingestion pending external batch completion; re-run to resume",
			"namespace", result.Namespace)
		return
	}
	slog.Info("ingestion complete",
		"namespace", result.Namespace,
		"dataset", result.DatasetPath,
		"profiles", result.ProfileCount,
	)
}
