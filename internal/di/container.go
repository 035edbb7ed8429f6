// Package di provides dependency injection configuration for the transcoder daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/krihal/transcoderexpress/internal/config"
	"github.com/krihal/transcoderexpress/internal/di/providers"
	"github.com/krihal/transcoderexpress/internal/logger"
	"github.com/krihal/transcoderexpress/internal/pipeline"
	"github.com/krihal/transcoderexpress/internal/transcode"
	"github.com/krihal/transcoderexpress/internal/watcher"
)

// NewContainer creates and configures the DI container with all providers.
// Configuration is injected as a value: flag and validation problems are
// usage errors the caller reports before any service spins up.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)

	// Pipeline parts
	do.Provide(injector, providers.ProvideQueue)
	do.Provide(injector, providers.ProvideTranscoder)
	do.Provide(injector, providers.ProvideWatcher)

	// Pipeline
	do.Provide(injector, providers.ProvidePipeline)

	return injector
}

// Bootstrap initializes all services and returns the first failure instead
// of panicking, so startup problems surface as a clean non-zero exit.
// Instantiating the pipeline handle starts the daemon: the instance lock is
// taken, the watcher subscribes, and the pump and worker spin up.
func Bootstrap(injector *do.RootScope) error {
	// Core infrastructure
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}

	// Pipeline parts
	if _, err := do.Invoke[*pipeline.Queue](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*transcode.FFmpeg](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*watcher.Watcher](injector); err != nil {
		return err
	}

	// Pipeline
	if _, err := do.Invoke[*providers.PipelineHandle](injector); err != nil {
		return err
	}

	return nil
}
