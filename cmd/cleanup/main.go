package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/medox/temp-media/pkg/tempmedia"
	"github.com/medox/temp-media/pkg/tempmedia/config"
)

// Config is the environment configuration for the cleanup command
type Config struct {
	DatabaseURL      string `env:"DATABASE_URL" env-default:""`
	DBSchema         string `env:"DB_SCHEMA" env-default:"tempmedia"`
	StorageURL       string `env:"STORAGE_URL" env-default:"memory://"`
	AllowedMimeTypes string `env:"ALLOWED_MIME_TYPES" env-default:""`
	CleanupTimeout   string `env:"CLEANUP_TIMEOUT" env-default:"5m"`
}

func main() {
	expiredOnly := flag.Bool("expired-only", false, "only reclaim expired temp media")
	processedOnly := flag.Bool("processed-only", false, "only reclaim processed temp media")
	dryRun := flag.Bool("dry-run", false, "report what would be removed without deleting")
	flag.Parse()

	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(0)
	}

	serverConfig, err := buildServerConfig(envCfg)
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(0)
	}

	repo, err := serverConfig.BuildRepository()
	if err != nil {
		slog.Error("Failed to build repository", "err", err)
		os.Exit(0)
	}

	store, err := serverConfig.BuildStorageBackend()
	if err != nil {
		slog.Error("Failed to build storage backend", "err", err)
		os.Exit(0)
	}

	lifecycle, err := tempmedia.New(
		tempmedia.WithRepository(repo),
		tempmedia.WithBlobStore(store),
		tempmedia.WithEventSink(tempmedia.NewLoggingEventSink(nil)),
	)
	if err != nil {
		slog.Error("Failed to build lifecycle service", "err", err)
		os.Exit(0)
	}

	transfers, err := tempmedia.NewTransferService(lifecycle, repo, store)
	if err != nil {
		slog.Error("Failed to build transfer service", "err", err)
		os.Exit(0)
	}

	sweeper, err := serverConfig.BuildSweeper(lifecycle, transfers, repo)
	if err != nil {
		slog.Error("Failed to build sweeper", "err", err)
		os.Exit(0)
	}

	ctx := context.Background()
	opts := tempmedia.SweepOptions{
		ExpiredOnly:   *expiredOnly,
		ProcessedOnly: *processedOnly,
		DryRun:        *dryRun,
	}

	result, err := sweeper.Sweep(ctx, opts)
	if err != nil {
		slog.Error("Cleanup sweep failed", "err", err)
		if result == nil {
			os.Exit(0)
		}
	}

	printResult(result, opts)
	printStats(ctx, transfers)
}

func buildServerConfig(envCfg Config) (*config.ServerConfig, error) {
	timeout, err := time.ParseDuration(envCfg.CleanupTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_TIMEOUT: %w", err)
	}

	options := []config.Option{
		config.WithCleanupTimeout(timeout),
		config.WithDatabaseSchema(envCfg.DBSchema),
	}

	if envCfg.DatabaseURL != "" && envCfg.DatabaseURL != "memory" {
		options = append(options, config.WithDatabase("postgres", envCfg.DatabaseURL))
	}

	if envCfg.AllowedMimeTypes != "" && envCfg.AllowedMimeTypes != "*" {
		var types []string
		for _, t := range strings.Split(envCfg.AllowedMimeTypes, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		options = append(options, config.WithAllowedMimeTypes(types))
	}

	switch {
	case envCfg.StorageURL == "" || envCfg.StorageURL == "memory" || envCfg.StorageURL == "memory://":
		options = append(options, config.WithMemoryStorage())
	case strings.HasPrefix(envCfg.StorageURL, "file://"):
		options = append(options, config.WithFilesystemStorage(strings.TrimPrefix(envCfg.StorageURL, "file://"), ""))
	case strings.HasPrefix(envCfg.StorageURL, "s3://"):
		bucket := strings.TrimPrefix(envCfg.StorageURL, "s3://")
		if idx := strings.IndexByte(bucket, '?'); idx >= 0 {
			bucket = bucket[:idx]
		}
		options = append(options, config.WithS3Storage(bucket, os.Getenv("AWS_REGION")))
	default:
		return nil, fmt.Errorf("unsupported STORAGE_URL: %s", envCfg.StorageURL)
	}

	return config.Load(options...)
}

func printResult(result *tempmedia.SweepResult, opts tempmedia.SweepOptions) {
	verb := "Removed"
	if result.DryRun {
		verb = "Would remove"
	}

	if !opts.ProcessedOnly {
		fmt.Printf("%s %d expired temp media record(s)\n", verb, result.ExpiredRemoved)
	}
	if !opts.ExpiredOnly {
		fmt.Printf("%s %d processed temp media record(s)\n", verb, result.ProcessedRemoved)
	}
	fmt.Printf("Total: %d\n\n", result.TotalRemoved())
}

func printStats(ctx context.Context, transfers tempmedia.TransferService) {
	stats, err := transfers.GetTransferStats(ctx)
	if err != nil {
		slog.Error("Failed to get transfer stats", "err", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tCOUNT")
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	fmt.Fprintf(w, "active\t%d\n", stats.Active)
	fmt.Fprintf(w, "processed\t%d\n", stats.Processed)
	fmt.Fprintf(w, "expired\t%d\n", stats.Expired)
	w.Flush()
}
