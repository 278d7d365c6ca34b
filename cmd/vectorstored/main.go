// Vectorstored serves the vector store API over HTTP.
//
// Configuration is read from an optional YAML file and VECTORSTORED_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	vectorstored
//
//	# Start with a config file and an override
//	VECTORSTORED_SERVER__HTTP_PORT=9000 vectorstored -config vectorstored.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
	"github.com/fyrsmithlabs/vectorstored/internal/config"
	httpserver "github.com/fyrsmithlabs/vectorstored/internal/http"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("VECTORSTORED_CONFIG"), "path to a YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  vectorstored [-config file]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  vectorstored version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("vectorstored by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run builds the engine, serves HTTP until ctx is cancelled, then shuts
// down: the listener first, then background ingestions, then storage.
func run(ctx context.Context, configPath string, opts ...app.Option) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Error(ctx, "shutdown incomplete", zap.Error(err))
		}
	}()
	logger := a.Logger

	// Load the model in the background; /health reports progress.
	go func() {
		if err := a.Provider.WarmUp(ctx); err != nil {
			logger.Error(ctx, "embedding model unavailable", zap.Error(err))
		}
	}()

	if !cfg.Expiry.Disabled {
		sweeper, err := service.NewExpirySweeper(a.Service, cfg.Expiry.Schedule)
		if err != nil {
			return err
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	srv, err := httpserver.NewServer(a.Service, logger, &httpserver.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MaxUploadMB: cfg.Server.MaxUploadMB,
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "server configured",
		zap.String("version", version),
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/v1"),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("chunkstore", cfg.ChunkStore.Backend),
		zap.String("metadata", cfg.Metadata.Backend),
		zap.String("storage", cfg.Storage.Backend))

	return srv.Start(ctx, cfg.Server.ShutdownTimeout.Duration())
}
