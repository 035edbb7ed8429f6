package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krihal/transcoderexpress/internal/logger"
)

// stubTranscoder records every source path it is asked to convert and
// tracks how many conversions run at the same time.
type stubTranscoder struct {
	mu          sync.Mutex
	calls       []string
	failOn      map[string]error
	delay       time.Duration
	completions chan string

	active  atomic.Int32
	maxSeen atomic.Int32
}

func newStubTranscoder() *stubTranscoder {
	return &stubTranscoder{
		failOn:      map[string]error{},
		completions: make(chan string, 64),
	}
}

func (s *stubTranscoder) Transcode(ctx context.Context, sourcePath string) (string, error) {
	active := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if active <= seen || s.maxSeen.CompareAndSwap(seen, active) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, sourcePath)
	failErr := s.failOn[sourcePath]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			s.completions <- sourcePath
			return "", ctx.Err()
		}
	}

	s.completions <- sourcePath
	if failErr != nil {
		return "", failErr
	}
	return sourcePath + "_transcoded.wav", nil
}

func (s *stubTranscoder) callPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newQuietLogger() *logger.Logger {
	return logger.New(logger.Config{
		Writer: io.Discard,
		Format: "json",
		Level:  slog.LevelError,
	})
}

func waitForCompletions(t *testing.T, stub *stubTranscoder, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-stub.completions:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %d completions, saw %d calls", n, len(stub.callPaths()))
		}
	}
}

func waitForExit(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for worker to exit")
	}
}

func TestWorker_ProcessesJobsInOrder(t *testing.T) {
	q := NewQueue(8)
	stub := newStubTranscoder()
	w := NewWorker(q, stub, newQuietLogger())

	paths := []string{"/in/a.mp3", "/in/b.mp3", "/in/c.mp3"}
	for i, path := range paths {
		require.NoError(t, q.Send(Job{ID: fmt.Sprintf("job-%d", i), SourcePath: path}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()

	waitForCompletions(t, stub, len(paths))
	q.Close()
	waitForExit(t, done)

	assert.Equal(t, paths, stub.callPaths())
}

func TestWorker_FailureDoesNotStopProcessing(t *testing.T) {
	q := NewQueue(8)
	stub := newStubTranscoder()
	stub.failOn["/in/bad.mp3"] = errors.New("ffmpeg exited with code 1")
	w := NewWorker(q, stub, newQuietLogger())

	paths := []string{"/in/a.mp3", "/in/bad.mp3", "/in/c.mp3"}
	for _, path := range paths {
		require.NoError(t, q.Send(Job{SourcePath: path}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()

	waitForCompletions(t, stub, len(paths))
	q.Close()
	waitForExit(t, done)

	assert.Equal(t, paths, stub.callPaths())
}

func TestWorker_ExitsWhenQueueCloses(t *testing.T) {
	q := NewQueue(8)
	w := NewWorker(q, newStubTranscoder(), newQuietLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()

	q.Close()
	waitForExit(t, done)
}

func TestWorker_ExitsOnContextCancel(t *testing.T) {
	q := NewQueue(8)
	w := NewWorker(q, newStubTranscoder(), newQuietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	cancel()
	waitForExit(t, done)
}

func TestWorker_NeverOverlapsTranscodes(t *testing.T) {
	q := NewQueue(16)
	stub := newStubTranscoder()
	stub.delay = 30 * time.Millisecond
	w := NewWorker(q, stub, newQuietLogger())

	const jobs = 5
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Send(Job{SourcePath: fmt.Sprintf("/in/%d.mp3", i)}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()

	waitForCompletions(t, stub, jobs)
	q.Close()
	waitForExit(t, done)

	assert.Equal(t, int32(1), stub.maxSeen.Load())
	assert.Len(t, stub.callPaths(), jobs)
}
