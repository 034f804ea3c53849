package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/config"
	"github.com/milkpudding/gateway/internal/gateway"
	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/registry"
	"github.com/milkpudding/gateway/internal/routetable"
	"github.com/milkpudding/gateway/internal/watcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("API Gateway %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.NewWithOptions(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)
	gateway.Version = version

	logging.Info("Starting API Gateway",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("route_source", cfg.RouteSource.Type),
		zap.String("registry", cfg.Registry.Type),
	)

	resolver, err := buildRegistry(cfg)
	if err != nil {
		logging.Error("Failed to create service registry", zap.Error(err))
		os.Exit(1)
	}
	if resolver != nil {
		defer resolver.Close()
	}

	source, err := buildSource(cfg)
	if err != nil {
		logging.Error("Failed to create route source", zap.Error(err))
		os.Exit(1)
	}

	table := routetable.NewTable()
	gw := gateway.New(cfg, table, resolver)
	w := watcher.New(source, table)

	server := gateway.NewServer(cfg, gw, w)
	if err := server.Run(); err != nil {
		logging.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}

func buildSource(cfg *config.Config) (watcher.Source, error) {
	switch cfg.RouteSource.Type {
	case "file":
		return watcher.NewFileSource(cfg.RouteSource.Path)
	case "etcd":
		return watcher.NewEtcdSource(cfg.RouteSource)
	default:
		return nil, fmt.Errorf("unknown route source type %q", cfg.RouteSource.Type)
	}
}

func buildRegistry(cfg *config.Config) (registry.Registry, error) {
	switch cfg.Registry.Type {
	case "":
		return nil, nil
	case "consul":
		return registry.NewConsulRegistry(cfg.Registry.Address, cfg.Registry.Token)
	case "static":
		return registry.NewStaticRegistry(cfg.Registry.Static)
	default:
		return nil, fmt.Errorf("unknown registry type %q", cfg.Registry.Type)
	}
}
