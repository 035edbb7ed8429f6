// Package transcode converts audio files to 16 kHz mono WAV using ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/krihal/transcoderexpress/internal/config"
)

// outputSuffix is appended to the source stem to name the transcoded file.
const outputSuffix = "_transcoded.wav"

// LaunchError reports that ffmpeg could not be started at all,
// as opposed to starting and then exiting non-zero.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch ffmpeg %q: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecError reports that ffmpeg ran and exited non-zero.
type ExecError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, stderr)
}

// commandResult carries the captured output of a finished command.
type commandResult struct {
	stdout string
	stderr string
}

// commandRunner abstracts process execution so tests can substitute a
// recording double for the real ffmpeg binary.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // Binary path is resolved at construction
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return commandResult{stdout: stdout.String(), stderr: stderr.String()}, err
}

// FFmpeg converts source audio files into 16 kHz mono signed 16-bit WAV.
type FFmpeg struct {
	logger     *slog.Logger
	ffmpegPath string
	outputDir  string
	runner     commandRunner
}

// New creates an FFmpeg transcoder writing into cfg.OutputDir,
// creating the directory if needed.
//
// A missing binary is not fatal here: the daemon still starts, and each
// job fails on its own until ffmpeg becomes available.
func New(cfg config.TranscodeConfig, logger *slog.Logger) (*FFmpeg, error) {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	if resolved, err := exec.LookPath(ffmpegPath); err != nil {
		logger.Warn("ffmpeg not found, jobs will fail until it is available",
			slog.String("path", ffmpegPath),
			slog.Any("error", err),
		)
	} else {
		ffmpegPath = resolved
		logger.Info("using ffmpeg", slog.String("path", ffmpegPath))
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &FFmpeg{
		logger:     logger,
		ffmpegPath: ffmpegPath,
		outputDir:  cfg.OutputDir,
		runner:     execRunner{},
	}, nil
}

// Transcode converts the file at sourcePath and returns the output path.
// The call blocks until ffmpeg finishes; cancelling the context kills the
// process.
//
// No existence check happens up front: a path that vanished after its
// creation event simply makes ffmpeg exit non-zero like any other bad
// input. Two sources with the same stem map to the same output path and
// the later job's output wins.
func (f *FFmpeg) Transcode(ctx context.Context, sourcePath string) (string, error) {
	outputPath := f.OutputPath(sourcePath)
	args := buildFFmpegArgs(sourcePath, outputPath)

	f.logger.Debug("executing ffmpeg",
		slog.String("path", f.ffmpegPath),
		slog.Any("args", args),
	)

	result, err := f.runner.Run(ctx, f.ffmpegPath, args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExecError{ExitCode: exitErr.ExitCode(), Stderr: result.stderr}
		}
		return "", &LaunchError{Path: f.ffmpegPath, Err: err}
	}

	return outputPath, nil
}

// OutputPath returns the destination a source file transcodes to:
// the stem plus "_transcoded.wav", flat under the output directory.
func (f *FFmpeg) OutputPath(sourcePath string) string {
	return filepath.Join(f.outputDir, stem(filepath.Base(sourcePath))+outputSuffix)
}

// stem returns the filename portion before the first dot, so
// "speech.v2.mp3" yields "speech". A name without dots is returned whole.
func stem(filename string) string {
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		return filename[:i]
	}
	return filename
}

// buildFFmpegArgs assembles the conversion arguments: mono, 16 kHz,
// signed 16-bit samples, container inferred from the output name.
// ffmpeg is trusted to overwrite the output without prompting.
func buildFFmpegArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		output,
	}
}
