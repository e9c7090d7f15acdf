// Command todo serves the todo list API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxorio/todo/pkg/app"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML or JSON configuration file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Errorf("Failed to create application: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Start()
	}()
	logger.Infof("Listening on %s", cfg.Server.Addr)

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case err := <-serveErr:
		if err != nil {
			logger.Errorf("Server failed: %v", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Errorf("Error during shutdown: %v", err)
		exitCode = 1
	}

	logger.Info("Application stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// defaultConfigPath honours CONFIG_PATH so containers can relocate the file
func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func shutdownTimeout(cfg app.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
