// Package config provides application configuration management with support for
// command-line flags, positional arguments, environment variables, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Watch     WatchConfig
	Queue     QueueConfig
	Transcode TranscodeConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn warning error"`
	// Format selects json or pretty output. Empty picks by environment.
	Format string `validate:"omitempty,oneof=json pretty"`
}

// WatchConfig holds filesystem watch configuration.
type WatchConfig struct {
	// InputDir is the directory observed for newly created files.
	// It must exist before the daemon starts.
	InputDir string `validate:"required,dir"`
}

// QueueConfig holds job queue configuration.
type QueueConfig struct {
	// Capacity is the maximum number of queued jobs. Creation events
	// arriving while the queue is full are rejected and logged.
	Capacity int `validate:"min=1"`
}

// TranscodeConfig holds audio transcoding configuration.
type TranscodeConfig struct {
	// OutputDir is where transcoded files are written. Created if missing.
	OutputDir string `validate:"required"`
	// FFmpegPath overrides the ffmpeg binary location (default: ffmpeg from PATH).
	FFmpegPath string `validate:"required"`
}

var validate = validator.New()

// Load builds configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Positional arguments (INPUT_DIR OUTPUT_DIR).
// 3. Environment variables.
// 4. .env file.
// 5. Default values (lowest priority).
//
// args is the command line after the program name, typically os.Args[1:].
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("transcoderexpress", flag.ContinueOnError)

	var inputDir, outputDir string
	fs.StringVar(&inputDir, "input-dir", "", "Directory to watch for new audio files")
	fs.StringVar(&inputDir, "i", "", "Directory to watch for new audio files (shorthand)")
	fs.StringVar(&outputDir, "output-dir", "", "Directory for transcoded output")
	fs.StringVar(&outputDir, "o", "", "Directory for transcoded output (shorthand)")

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty; default: by environment)")
	queueCapacity := fs.String("queue-capacity", "", "Maximum queued jobs before new events are rejected (default: 1024)")
	ffmpegPath := fs.String("ffmpeg-path", "", "Path to ffmpeg binary (default: ffmpeg from PATH)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] [INPUT_DIR OUTPUT_DIR]\n\nFlags:\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Positional arguments fill in whatever the flags left unset.
	if inputDir == "" && fs.NArg() > 0 {
		inputDir = fs.Arg(0)
	}
	if outputDir == "" && fs.NArg() > 1 {
		outputDir = fs.Arg(1)
	}

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "TRANSCODER_ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(getConfigValue(*logLevel, "TRANSCODER_LOG_LEVEL", "info")),
			Format: strings.ToLower(getConfigValue(*logFormat, "TRANSCODER_LOG_FORMAT", "")),
		},
		Watch: WatchConfig{
			InputDir: getConfigValue(inputDir, "TRANSCODER_INPUT_DIR", ""),
		},
		Queue: QueueConfig{
			Capacity: getIntConfigValue(*queueCapacity, "TRANSCODER_QUEUE_CAPACITY", 1024),
		},
		Transcode: TranscodeConfig{
			OutputDir:  getConfigValue(outputDir, "TRANSCODER_OUTPUT_DIR", ""),
			FFmpegPath: getConfigValue(*ffmpegPath, "TRANSCODER_FFMPEG_PATH", "ffmpeg"),
		},
	}

	// Expand and validate the input directory.
	if err := cfg.expandInputDir(); err != nil {
		return nil, fmt.Errorf("invalid input directory: %w", err)
	}

	// Expand the output directory. It does not need to exist yet.
	if err := cfg.expandOutputDir(); err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		fs.Usage()
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, friendlyMessage(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// friendlyMessage converts a validator field error into a human-readable message.
func friendlyMessage(e validator.FieldError) string {
	field := fieldLabel(e.StructNamespace())
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "dir":
		return fmt.Sprintf("%s does not exist or is not a directory: %v", field, e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return field + " is invalid"
	}
}

// fieldLabel maps struct namespaces to the names users know from flags and env vars.
func fieldLabel(namespace string) string {
	switch namespace {
	case "Config.App.Environment":
		return "environment"
	case "Config.Logger.Level":
		return "log level"
	case "Config.Logger.Format":
		return "log format"
	case "Config.Watch.InputDir":
		return "input directory"
	case "Config.Queue.Capacity":
		return "queue capacity"
	case "Config.Transcode.OutputDir":
		return "output directory"
	case "Config.Transcode.FFmpegPath":
		return "ffmpeg path"
	default:
		return namespace
	}
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandInputDir expands ~ and makes the path absolute.
// An empty path stays empty so validation can report it as missing.
func (c *Config) expandInputDir() error {
	if c.Watch.InputDir == "" {
		return nil
	}

	expanded, err := expandPath(c.Watch.InputDir, "")
	if err != nil {
		return err
	}
	c.Watch.InputDir = expanded
	return nil
}

// expandOutputDir expands ~ and makes the path absolute.
func (c *Config) expandOutputDir() error {
	if c.Transcode.OutputDir == "" {
		return nil
	}

	expanded, err := expandPath(c.Transcode.OutputDir, "")
	if err != nil {
		return err
	}
	c.Transcode.OutputDir = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag (or positional argument).
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
