// Package main provides the entry point for the transcoder daemon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/krihal/transcoderexpress/internal/config"
	"github.com/krihal/transcoderexpress/internal/di"
	"github.com/krihal/transcoderexpress/internal/logger"
)

func main() {
	// Parse configuration before the container exists so usage errors
	// stay usage errors instead of dependency failures.
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create DI container
	injector := di.NewContainer(cfg)

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start transcoder: %v\n", err)
		os.Exit(1)
	}

	// Get logger for shutdown messages
	log := do.MustInvoke[*logger.Logger](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info("received signal, shutting down", "signal", sig.String())

	// Shutdown all services in reverse order
	// The DI container handles shutdown order automatically
	if err := injector.Shutdown(); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("shutdown complete")
}
