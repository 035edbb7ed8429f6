// Package providers contains dependency injection providers for the transcoder daemon.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/krihal/transcoderexpress/internal/config"
	"github.com/krihal/transcoderexpress/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("starting transcoder",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"input_dir", cfg.Watch.InputDir,
		"output_dir", cfg.Transcode.OutputDir,
		"queue_capacity", cfg.Queue.Capacity,
	)

	return log, nil
}
