package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{Level: "info", Format: "json", Output: &buf, Service: "storagekit"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Put object", zap.String("repository", "lab"), zap.String("path", "a.csv"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Put object", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "lab", entry["repository"])
	assert.Equal(t, "storagekit", entry["service"])
	assert.Contains(t, entry, "ts")
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Debug("Set repository", zap.String("repository", "lab"))
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "Set repository")
	assert.Contains(t, buf.String(), `"repository": "lab"`)
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Format: "xml"})
	assert.Error(t, err)
	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	t.Cleanup(func() { CLILogger = orig })

	InitCLILogger("storagekit", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("storagekit", false)
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	SetCLILogger(nil)
	assert.NotNil(t, CLILogger)
}
