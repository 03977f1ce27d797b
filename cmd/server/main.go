package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/config"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Parse flags
	configFile := flag.String("config", os.Getenv(config.FileEnv), "Config file (yaml, toml or json)")
	port := flag.String("port", "", "Server port (overrides config)")
	host := flag.String("host", "", "Listen host (overrides config)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applyFlags(cfg, *port, *host, *dev); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Close(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}

// applyFlags layers the command line overrides on cfg and validates the
// result again.
func applyFlags(cfg *config.Config, port, host string, dev bool) error {
	if port != "" {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	return cfg.Validate()
}
