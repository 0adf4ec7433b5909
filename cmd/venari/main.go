// -----------------------------------------------------------------------
// venari - durable job-discovery queue worker
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/app"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	databasePath = flag.String("db", "", "SQLite database path (overrides config)")
	logLevel     = flag.String("log-level", "", "Log level (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Venari version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Shorthand flags take precedence over their long forms
	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Auto-discover a config file when none is specified. CONFIG_PATH is
	// honoured inside common.Load.
	if len(configFiles) == 0 && os.Getenv("CONFIG_PATH") == "" {
		if _, err := os.Stat("venari.toml"); err == nil {
			configFiles = append(configFiles, "venari.toml")
		} else if _, err := os.Stat("deployments/local/venari.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/venari.toml")
		}
	}

	// Startup order: config -> flag overrides -> validation -> logger ->
	// banner -> app -> HTTP server -> worker.
	config, err := common.Load(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// CLI flags are the highest-priority layer
	if finalPort != 0 {
		config.Server.Port = finalPort
	}
	if *serverHost != "" {
		config.Server.Host = *serverHost
	}
	if *databasePath != "" {
		config.Database.Path = *databasePath
	}
	if *logLevel != "" {
		config.Logging.Level = *logLevel
	}

	if err := config.Validate(); err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)

	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Str("database", config.Database.Path).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	srv := server.New(application)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Server goroutine panicked")
				os.Exit(1)
			}
		}()

		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("Server failed to start")
			os.Exit(1)
		}
	}()

	// Give the listener a moment before starting the worker
	time.Sleep(100 * time.Millisecond)

	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start worker")
		os.Exit(1)
	}

	logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Msg("Interrupt signal received, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Msg("Worker stopped")
}
