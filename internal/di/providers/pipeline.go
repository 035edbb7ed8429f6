package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/krihal/transcoderexpress/internal/config"
	"github.com/krihal/transcoderexpress/internal/logger"
	"github.com/krihal/transcoderexpress/internal/pipeline"
	"github.com/krihal/transcoderexpress/internal/transcode"
	"github.com/krihal/transcoderexpress/internal/watcher"
)

// ProvideQueue provides the bounded job queue.
func ProvideQueue(i do.Injector) (*pipeline.Queue, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return pipeline.NewQueue(cfg.Queue.Capacity), nil
}

// ProvideTranscoder provides the ffmpeg transcoder.
func ProvideTranscoder(i do.Injector) (*transcode.FFmpeg, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return transcode.New(cfg.Transcode, log.Logger)
}

// ProvideWatcher provides the filesystem watcher. The pipeline subscribes
// it to the input directory and owns its lifecycle from there.
func ProvideWatcher(i do.Injector) (*watcher.Watcher, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return watcher.New(log.Logger)
}

// PipelineHandle wraps the running pipeline with shutdown capability.
type PipelineHandle struct {
	*pipeline.Pipeline
}

// Shutdown implements do.Shutdownable.
func (h *PipelineHandle) Shutdown() error {
	h.Pipeline.Stop()
	return nil
}

// ProvidePipeline provides the started pipeline: instance lock held,
// watcher subscribed to the input directory, pump and worker running.
func ProvidePipeline(i do.Injector) (*PipelineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	queue := do.MustInvoke[*pipeline.Queue](i)
	ffmpeg := do.MustInvoke[*transcode.FFmpeg](i)
	w := do.MustInvoke[*watcher.Watcher](i)

	p := pipeline.New(cfg, log, w, queue, ffmpeg)
	if err := p.Start(context.Background()); err != nil {
		return nil, err
	}

	return &PipelineHandle{Pipeline: p}, nil
}
