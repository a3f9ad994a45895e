package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/firewall-mcp/internal/api"
	"github.com/miradorstack/firewall-mcp/internal/cache"
	"github.com/miradorstack/firewall-mcp/internal/config"
	"github.com/miradorstack/firewall-mcp/internal/engine"
	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/mcp"
	"github.com/miradorstack/firewall-mcp/internal/metrics"
	"github.com/miradorstack/firewall-mcp/internal/patterns"
	"github.com/miradorstack/firewall-mcp/internal/query"
	"github.com/miradorstack/firewall-mcp/internal/repo"
	"github.com/miradorstack/firewall-mcp/internal/services"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, os.Stderr)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("starting firewall-mcp",
		slog.String("version", version),
		slog.String("transport", cfg.Server.Transport),
		slog.String("grpc_address", cfg.Server.Address),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider := buildCache(cfg.Cache, logger)
	defer cacheProvider.Close()

	firewallClient := repo.NewFirewallClient(cfg.Firewall, cacheProvider, cfg.Cache.SearchTTL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fieldCatalog := fields.NewDefaultCatalog()
	patternCatalog := patterns.NewDefaultCatalog()
	if _, err := patterns.LoadFile(ctx, patternCatalog, cfg.Patterns.Path, logger); err != nil {
		logger.Error("failed to load pattern pack", slog.String("path", cfg.Patterns.Path), slog.Any("error", err))
		os.Exit(1)
	}

	translator := query.NewTranslator(cfg.Correlation.FetchLimit, cfg.Correlation.MaxFetchLimit)
	correlator := engine.NewCorrelator(logger, firewallClient, fieldCatalog, translator, engine.Options{
		SearchTimeout:      cfg.Correlation.SearchTimeout,
		MaxParallel:        cfg.Correlation.MaxParallel,
		DefaultResultLimit: cfg.Correlation.DefaultResultLimit,
		MaxResultLimit:     cfg.Correlation.MaxResultLimit,
		MaxClauseValues:    cfg.Correlation.MaxClauseValues,
	})
	suggester := engine.NewSuggester(fieldCatalog, patternCatalog, nil)
	correlationService := services.NewCorrelationService(logger, correlator, suggester)

	var grpcServer *api.Server
	if cfg.Server.Address != "" {
		grpcServer, err = api.NewServer(cfg.Server, api.NewHandler(correlationService, logger))
		if err != nil {
			logger.Error("failed to create gRPC server", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
			if serveErr := grpcServer.Start(); serveErr != nil {
				logger.Error("gRPC server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if cfg.Server.Transport == config.TransportStdio {
		registry := mcp.NewRegistry()
		if err := mcp.RegisterTools(registry, correlationService, firewallClient); err != nil {
			logger.Error("failed to register tools", slog.Any("error", err))
			os.Exit(1)
		}
		mcpServer := mcp.NewServer(registry, mcp.ServerInfo{Name: "firewall-mcp", Version: version}, logger)
		go func() {
			logger.Info("serving MCP over stdio", slog.Int("tools", registry.Len()))
			if err := mcpServer.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mcp session ended", slog.Any("error", err))
			} else {
				logger.Info("mcp client disconnected")
			}
			stop()
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if grpcServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grpcServer.GracefulTimeout())
		grpcServer.Shutdown(shutdownCtx)
		cancel()
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("firewall-mcp stopped")
}

// buildCache layers the in-process LRU in front of Redis when a shared cache
// is configured. Redis failures degrade to the local tier only.
func buildCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	local := cache.NewLocalProvider(cfg.LocalSize, cfg.LocalTTL)
	if !cfg.Enabled {
		return local
	}
	remote, err := cache.NewRedisProvider(cache.RedisConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		KeyPrefix:    cfg.KeyPrefix,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("redis cache unavailable", slog.Any("error", err))
		return local
	}
	return cache.NewTiered(local, remote, cfg.LocalTTL)
}
