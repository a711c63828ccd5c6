package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSinkEmitsOnlyWhenEnabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	disabled := NewSink(logger, "loader", false)
	disabled.Event("loader.ready")
	assert.Equal(t, 0, logs.Len())

	enabled := NewSink(logger, "loader", true)
	enabled.Event("loader.ready", zap.String("token", "demo"))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	assert.Equal(t, "loader.ready", entry.Message)
	assert.Equal(t, "HeadlineTester.loader", entry.LoggerName)
	assert.Equal(t, "demo", entry.ContextMap()["token"])
}

func TestNewSinkWithoutLogger(t *testing.T) {
	sink := NewSink(nil, "widget", true)
	assert.IsType(t, NopSink{}, sink)
	sink.Event("ignored")
}

func TestRecordingSink(t *testing.T) {
	var sink RecordingSink
	sink.Event("a")
	sink.Event("b", zap.Int("n", 1))
	assert.Equal(t, []string{"a", "b"}, sink.Labels())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, logger.Named("store"))
}

func TestConfigFor(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		want        Config
		wantDebug   bool
	}{
		{"production preset", "", false, DefaultConfig(), false},
		{"development preset", "", true, DevelopmentConfig(), true},
		{"level overrides production", "warn", false, Config{Level: "warn", OutputPaths: []string{"stdout"}}, false},
		{"level overrides development", "info", true, Config{Level: "info", Development: true, OutputPaths: []string{"stdout"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ConfigFor(tt.level, tt.development)
			assert.Equal(t, tt.want, cfg)

			logger, err := New(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}
