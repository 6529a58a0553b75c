package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentlane/relay/config"
	"github.com/agentlane/relay/monitoring"
	"github.com/agentlane/relay/provider"
	"github.com/agentlane/relay/registry"
	"github.com/agentlane/relay/routing"
	"github.com/agentlane/relay/server"
	"github.com/agentlane/relay/utils"
)

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.LoadConfig(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}
	sugar.Infow("Loaded config", "config", cfg)

	routingConfig, err := cfg.RoutingConfig()
	if err != nil {
		sugar.Fatalw("Invalid routing config", "error", err)
	}

	var monitor *monitoring.Monitor
	if cfg.Monitoring == nil || cfg.Monitoring.Enabled {
		monitor, err = monitoring.NewMonitor(cfg.Monitoring, sugar)
		if err != nil {
			sugar.Fatalw("Failed to create monitor", "error", err)
		}
	}

	// Provider endpoints are registered by embedding applications; the
	// standalone binary serves the generic selection path and the
	// observability API.
	router, err := routing.NewRouter(routingConfig, map[provider.Provider]provider.Endpoint{}, monitor, sugar)
	if err != nil {
		sugar.Fatalw("Failed to create router", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mcpRegistry, err := registry.NewMCP(cfg.MCPServers, sugar)
	if err != nil {
		sugar.Fatalw("Invalid MCP server config", "error", err)
	}
	if err := mcpRegistry.Connect(ctx); err != nil {
		sugar.Fatalw("Failed to connect MCP servers", "error", err)
	}
	defer mcpRegistry.Close()

	backends := registry.NewComposite(registry.NewStatic(cfg.Backends), mcpRegistry)
	go watchBackends(ctx, backends, sugar)

	httpServer := server.New(cfg.Port, router, monitor, sugar)

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Fatalw("Server forced to shutdown", "error", err)
		}
	}()

	if err := httpServer.Start(); err != nil {
		sugar.Fatalw("Failed to start server", "error", err)
	}

	sugar.Infow("Server exited gracefully")
}

// watchBackends periodically snapshots the backend registries so flapping
// MCP servers show up in the logs without waiting for a routed request.
func watchBackends(ctx context.Context, backends registry.Registry, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// This ensures we have initial data without waiting for the first tick,
	// which occurs after a full interval.
	logBackends(ctx, backends, logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logBackends(ctx, backends, logger)
		}
	}
}

func logBackends(ctx context.Context, backends registry.Registry, logger *zap.SugaredLogger) {
	snapshot, err := backends.Snapshot(ctx)
	if err != nil {
		logger.Warnw("Failed to snapshot backends", "error", err)
		return
	}
	logger.Infow("Backend snapshot", "count", len(snapshot))
}
