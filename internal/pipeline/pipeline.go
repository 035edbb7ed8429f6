package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/krihal/transcoderexpress/internal/config"
	"github.com/krihal/transcoderexpress/internal/id"
	"github.com/krihal/transcoderexpress/internal/logger"
	"github.com/krihal/transcoderexpress/internal/watcher"
)

// Pipeline wires the watcher, queue, and worker together and owns their
// lifecycle: creation events become jobs, jobs become transcodes, one at
// a time.
type Pipeline struct {
	logger   *logger.Logger
	inputDir string
	watcher  *watcher.Watcher
	queue    *Queue
	worker   *Worker
	lock     *flock.Flock

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a pipeline from its parts.
func New(cfg *config.Config, log *logger.Logger, w *watcher.Watcher, q *Queue, t Transcoder) *Pipeline {
	return &Pipeline{
		logger:   log,
		inputDir: cfg.Watch.InputDir,
		watcher:  w,
		queue:    q,
		worker:   NewWorker(q, t, log),
	}
}

// Start acquires the single-instance lock, subscribes the watcher to the
// input directory, and launches the pump and worker. It returns once the
// pipeline is running; failures here mean the daemon cannot do its job
// and should not come up.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.acquireLock(); err != nil {
		return err
	}

	if err := p.watcher.Watch(p.inputDir); err != nil {
		p.releaseLock()
		return fmt.Errorf("watch input directory: %w", err)
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		if err := p.watcher.Start(ctx); err != nil {
			p.logger.WithError(err).Error("watcher stopped unexpectedly")
		}
	}()
	go func() {
		defer p.wg.Done()
		p.pump(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.worker.Run(ctx)
	}()

	p.logger.Info("watching directory", slog.String("path", p.inputDir))
	return nil
}

// Stop shuts the pipeline down: no new jobs are accepted, an in-flight
// transcode is killed through its context, and whatever is still queued
// is dropped. Queued work does not survive a restart.
func (p *Pipeline) Stop() {
	p.logger.Info("stopping pipeline")

	p.queue.Close()
	if p.cancel != nil {
		p.cancel()
	}
	p.watcher.Stop() //nolint:errcheck // Stop never fails
	p.wg.Wait()

	if dropped := p.queue.Len(); dropped > 0 {
		p.logger.Warn("dropping queued jobs", slog.Int("count", dropped))
	}

	p.releaseLock()
	p.logger.Info("pipeline stopped")
}

// pump turns watcher events into queued jobs. Every observed creation
// produces a log line whether or not the queue accepts it. A closed
// queue means nothing will ever consume again, so the pump stops
// instead of spinning on rejections.
func (p *Pipeline) pump(ctx context.Context) {
	events := p.watcher.Events()
	errs := p.watcher.Errors()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := p.enqueue(event); errors.Is(err, ErrQueueClosed) {
				return
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			p.logger.WithError(err).Error("watcher error")
		}
	}
}

// enqueue builds a job for a creation event and offers it to the queue.
// It returns the Send error; a full queue is already handled (logged and
// dropped), the caller only cares whether the queue is gone for good.
func (p *Pipeline) enqueue(event watcher.Event) error {
	jobID, err := id.Generate("job")
	if err != nil {
		p.logger.WithError(err).Error("failed to generate job id",
			slog.String("path", event.Path),
		)
		return nil
	}

	job := Job{
		ID:         jobID,
		SourcePath: event.Path,
		EnqueuedAt: time.Now(),
	}

	if err := p.queue.Send(job); err != nil {
		p.logger.WithError(err).Error("file created, queue rejected job",
			slog.String("job_id", jobID),
			slog.String("path", event.Path),
		)
		return err
	}

	p.logger.Info("file created, adding to queue",
		slog.String("job_id", jobID),
		slog.String("path", event.Path),
	)
	return nil
}

// acquireLock takes the per-input-directory instance lock so two daemons
// never watch the same tree.
func (p *Pipeline) acquireLock() error {
	lockPath := instanceLockPath(p.inputDir)
	lock := flock.New(lockPath)

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another transcoder instance is already watching %s (lock: %s)", p.inputDir, lockPath)
	}

	p.lock = lock
	return nil
}

func (p *Pipeline) releaseLock() {
	if p.lock == nil {
		return
	}
	if err := p.lock.Unlock(); err != nil {
		p.logger.WithError(err).Warn("failed to release instance lock")
	}
	p.lock = nil
}

// instanceLockPath places the lock file in the system temp directory,
// keyed by the watched path so daemons on different inputs can coexist.
func instanceLockPath(inputDir string) string {
	h := fnv.New32a()
	h.Write([]byte(inputDir)) //nolint:errcheck // fnv writes never fail
	return filepath.Join(os.TempDir(), fmt.Sprintf("transcoderexpress-%08x.lock", h.Sum32()))
}
