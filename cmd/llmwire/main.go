package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/llmwire/llmwire/internal/config"
	"github.com/llmwire/llmwire/internal/gateway"
	"github.com/llmwire/llmwire/internal/metrics"
	"github.com/llmwire/llmwire/internal/orchestrator"
	"github.com/llmwire/llmwire/internal/registry"
	"github.com/llmwire/llmwire/internal/resolver"
	"github.com/llmwire/llmwire/internal/server"
	"github.com/llmwire/llmwire/internal/storage/sqlite"
	"github.com/llmwire/llmwire/internal/telemetry"
	"github.com/llmwire/llmwire/internal/tokens"
	"github.com/llmwire/llmwire/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml, or LLMWIRE_CONFIG)")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	path := *configPath
	if path == "" {
		path = os.Getenv("LLMWIRE_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("llmwire", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	reg, err := registry.New(cfg.ProviderConfigs(), cfg.Routing.DefaultProvider)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	var resolverOpts []resolver.Option
	if cfg.Routing.MaxAliasChain > 0 {
		resolverOpts = append(resolverOpts, resolver.WithMaxChainLength(cfg.Routing.MaxAliasChain))
	}
	res := resolver.New(reg, resolverOpts...)

	trackerOpts := []metrics.Option{metrics.WithLogger(logger)}
	handlerOpts := []gateway.Option{gateway.WithLogger(logger)}
	if cfg.Storage.Path != "" {
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open usage store: %v", err)
		}
		defer store.Close()
		trackerOpts = append(trackerOpts, metrics.WithStore(store))
		handlerOpts = append(handlerOpts, gateway.WithStore(store))
	}
	tracker := metrics.New(trackerOpts...)
	handlerOpts = append(handlerOpts, gateway.WithTracker(tracker))

	estimator := tokens.NewEstimator()
	orch := orchestrator.New(reg, res,
		upstream.New(upstream.WithLogger(logger)),
		orchestrator.WithSink(tracker),
		orchestrator.WithEstimator(estimator),
		orchestrator.WithLogger(logger),
	)

	h := gateway.New(orch, reg, res, estimator, handlerOpts...)

	srv := server.New(cfg.Server.Port, cfg.Server.APIKey, logger)
	h.Routes(srv.Router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("gateway starting",
		slog.Int("port", cfg.Server.Port),
		slog.Any("providers", reg.Names()))

	if err := srv.Start(ctx); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}
