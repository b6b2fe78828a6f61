package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/example/dispatch/internal/config"
	"github.com/example/dispatch/internal/filter/accesslog"
	"github.com/example/dispatch/internal/filter/headers"
	"github.com/example/dispatch/internal/logging"
	"github.com/example/dispatch/internal/pipeline"
	"github.com/example/dispatch/internal/registry"
	"github.com/example/dispatch/internal/server"
	"github.com/example/dispatch/internal/servlet"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/dispatch.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dispatch %s (built %s)\n", version, buildTime)
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

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting dispatch",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Int("filters", len(cfg.Filters)),
		zap.Int("servlets", len(cfg.Servlets)),
	)

	reg := builtins()

	srv, err := server.New(cfg, *configPath, reg)
	if err != nil {
		logging.Error("failed to create server", zap.Error(err))
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		logging.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

// builtins registers the built-in filters and servlets. Embedders replace
// this with their own bindings.
func builtins() *registry.Registry {
	reg := registry.New()
	provide := func(key string, p registry.Provider) {
		if err := reg.Provide(key, registry.Singleton, p); err != nil {
			// Keys are static, so this only fires on a duplicate
			// registration introduced by a code change.
			panic(err)
		}
	}
	provide("accesslog", func() (any, error) {
		return pipeline.Filter(accesslog.New()), nil
	})
	provide("headers", func() (any, error) {
		return pipeline.Filter(headers.New()), nil
	})
	provide("echo", func() (any, error) {
		return pipeline.Servlet(servlet.NewEcho()), nil
	})
	provide("static", func() (any, error) {
		return pipeline.Servlet(servlet.NewStatic()), nil
	})
	return reg
}
