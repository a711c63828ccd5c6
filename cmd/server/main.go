package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override env vars
	port := flag.String("port", cfg.Server.Port, "Server port")
	dsn := flag.String("dsn", cfg.Store.DSN, "SQLite DSN for the experiment store (empty keeps it in memory)")
	widgets := flag.String("widgets", cfg.Store.WidgetsFile, "YAML, JSON or TOML file of widgets to seed")
	demo := flag.String("demo", cfg.Server.DemoDir, "Directory of demo host pages")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Store.DSN = *dsn
	cfg.Store.WidgetsFile = *widgets
	cfg.Server.DemoDir = *demo
	logCfg := logging.ConfigFor(cfg.Logging.Level, cfg.Logging.Development)
	if *dev {
		logCfg = logging.DevelopmentConfig()
	}

	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}
