package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_SAMPLING", "off")

	cfg := ConfigFromEnv()
	assert.Equal(t, LevelWarning, cfg.Level)
	assert.True(t, cfg.DisableSampling)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel(LevelDebug))
	assert.Equal(t, slog.LevelError, parseLogLevel(LevelError))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("LOUD"))
}

func TestLogRelayEventFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: LevelInfo, Output: &buf, DisableSampling: true})

	LogRelayEvent(WithComponent(log, "relay"), slog.LevelInfo, "Upstream connected",
		"http://origin/stream", "10.0.0.1:5000", slog.Int("icy_bitrate", 128))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Upstream connected", entry["msg"])
	assert.Equal(t, "relay", entry["component"])
	assert.Equal(t, "relay", entry["event_type"])
	assert.Equal(t, "http://origin/stream", entry["upstream"])
	assert.Equal(t, "10.0.0.1:5000", entry["remote_addr"])
	assert.EqualValues(t, 128, entry["icy_bitrate"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: LevelInfo, Output: &buf, DisableSampling: true})

	log.Debug("hidden")
	LogConfigEvent(log, slog.LevelInfo, "Stream config updated")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"event_type":"config"`)
}

func TestThresholdSamplingKeepsFirstMessages(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.ThresholdSamplingRate = 0
	log := NewLogger(cfg)

	for i := 0; i < 50; i++ {
		log.Warn("Stream appears to be stalled")
	}

	lines := strings.Count(buf.String(), "\n")
	assert.Positive(t, lines)
	assert.LessOrEqual(t, lines, int(cfg.ThresholdSamplingMax)+1)
}
