package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/krihal/transcoderexpress/internal/logger"
)

// Transcoder converts one source file and reports where the output landed.
type Transcoder interface {
	Transcode(ctx context.Context, sourcePath string) (string, error)
}

// Worker drains the queue one job at a time. Exactly one worker runs per
// pipeline; that is what serializes transcodes, not any lock around ffmpeg.
type Worker struct {
	queue      *Queue
	transcoder Transcoder
	logger     *logger.Logger
}

// NewWorker creates a worker consuming from queue.
func NewWorker(queue *Queue, transcoder Transcoder, log *logger.Logger) *Worker {
	return &Worker{
		queue:      queue,
		transcoder: transcoder,
		logger:     log,
	}
}

// Run processes jobs until the queue closes or the context is cancelled.
// It never returns early on a failed job.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Debug("worker started")

	for {
		job, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				w.logger.Debug("queue closed, worker exiting")
			} else {
				w.logger.Debug("worker context cancelled")
			}
			return
		}

		w.process(ctx, job)
	}
}

// process runs one job to completion. A failed transcode is final: the
// job is not retried, and the failure lives only in the log.
func (w *Worker) process(ctx context.Context, job Job) {
	start := time.Now()

	w.logger.Info("processing file",
		slog.String("job_id", job.ID),
		slog.String("path", job.SourcePath),
	)

	outputPath, err := w.transcoder.Transcode(ctx, job.SourcePath)
	if err != nil {
		w.logger.WithError(err).Error("transcode failed",
			slog.String("job_id", job.ID),
			slog.String("path", job.SourcePath),
		)
	} else {
		w.logger.Info("transcode completed",
			slog.String("job_id", job.ID),
			slog.String("output", outputPath),
		)
	}

	w.logger.Info("done processing file",
		slog.String("job_id", job.ID),
		slog.String("path", job.SourcePath),
		slog.Duration("elapsed", time.Since(start)),
	)
}
