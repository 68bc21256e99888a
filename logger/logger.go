// Package logger builds the structured logger shared by the relay service and the player.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogsampling "github.com/samber/slog-sampling"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// Config holds the logger configuration.
type Config struct {
	Level                 LogLevel
	Output                io.Writer
	DisableSampling       bool
	ThresholdSamplingTick time.Duration
	ThresholdSamplingMax  uint64
	ThresholdSamplingRate float64
	EnableCustomSampling  bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:                 LevelWarning,
		Output:                os.Stdout,
		ThresholdSamplingTick: 5 * time.Second,
		ThresholdSamplingMax:  10,   // First 10 identical messages per tick pass through.
		ThresholdSamplingRate: 0.05, // Then 5% of the rest.
	}
}

// ConfigFromEnv reads LOG_LEVEL and LOG_SAMPLING on top of DefaultConfig.
func ConfigFromEnv() *Config {
	config := DefaultConfig()
	if level := strings.ToUpper(strings.TrimSpace(os.Getenv("LOG_LEVEL"))); level != "" {
		if level == "WARN" {
			level = string(LevelWarning)
		}
		config.Level = LogLevel(level)
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_SAMPLING"))) {
	case "false", "0", "off", "no":
		config.DisableSampling = true
	case "custom":
		config.EnableCustomSampling = true
	}
	return config
}

// NewLogger creates a new configured logger with sampling.
func NewLogger(config *Config) *slog.Logger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	baseHandler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLogLevel(config.Level),
	})

	if config.DisableSampling {
		return slog.New(baseHandler)
	}

	if config.EnableCustomSampling {
		customSamplingOption := slogsampling.CustomSamplingOption{
			Sampler: func(_ context.Context, record slog.Record) float64 {
				switch {
				case record.Level >= slog.LevelError:
					return 1.0
				case record.Level >= slog.LevelWarn:
					return 0.7
				case record.Level >= slog.LevelInfo:
					return 0.3
				default:
					return 0.05
				}
			},
		}

		return slog.New(
			slogmulti.
				Pipe(customSamplingOption.NewMiddleware()).
				Handler(baseHandler),
		)
	}

	// Relay loops can repeat the same warning for every listener; threshold sampling keeps the
	// first occurrences and thins the tail.
	thresholdOption := slogsampling.ThresholdSamplingOption{
		Tick:      config.ThresholdSamplingTick,
		Threshold: config.ThresholdSamplingMax,
		Rate:      config.ThresholdSamplingRate,
		Matcher:   slogsampling.MatchByLevelAndMessage(),
	}

	return slog.New(
		slogmulti.
			Pipe(thresholdOption.NewMiddleware()).
			Handler(baseHandler),
	)
}

// NewLoggerFromEnv creates a logger from LOG_LEVEL and LOG_SAMPLING.
func NewLoggerFromEnv() *slog.Logger {
	return NewLogger(ConfigFromEnv())
}

// parseLogLevel converts LogLevel to slog.Level.
func parseLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// WithComponent adds a component field to the logger for better categorization.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// LogRelayEvent logs upstream relay events with consistent fields.
func LogRelayEvent(logger *slog.Logger, level slog.Level, msg string, upstream string, remoteAddr string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("upstream", upstream),
		slog.String("remote_addr", remoteAddr),
		slog.String("event_type", "relay"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}

// LogConfigEvent logs configuration-related events.
func LogConfigEvent(logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("event_type", "config"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}
