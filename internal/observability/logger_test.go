// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/lancet/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferSink() (*bytes.Buffer, zapcore.WriteSyncer) {
	var buf bytes.Buffer
	return &buf, zapcore.AddSync(&buf)
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes levels", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf, sink := bufferSink()

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "lancet-test",
			Colors:      config.ColorConfig{Info: "green"},
		}, sink)
		GetLogger().Info("scenario started")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "scenario started")
		assert.Contains(t, out, "lancet-test.")
		assert.Contains(t, out, colorGreen)
		assert.Contains(t, out, colorReset)
	})

	t.Run("json format is structured", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf, sink := bufferSink()

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, sink)
		GetLogger().Warn("step failed", zap.String("step", "click generate"))
		Sync()

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "step failed", entry["msg"])
		assert.Equal(t, "click generate", entry["step"])
	})

	t.Run("level filters debug output", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf, sink := bufferSink()

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, sink)
		GetLogger().Debug("readiness timed out")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("log file receives entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		_, sink := bufferSink()
		logFile := filepath.Join(t.TempDir(), "lancet.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1}, sink)
		GetLogger().Error("artifact write failed")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "artifact write failed")
	})

	t.Run("only the first initialization wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf, sink := bufferSink()

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, sink)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, sink)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("hello")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestNew(t *testing.T) {
	ResetForTest()
	buf, sink := bufferSink()

	logger := New(config.LoggerConfig{Level: "bogus", Format: "json"}, sink)
	logger.Debug("hidden")
	logger.Info("visible")
	_ = logger.Sync()

	assert.NotContains(t, buf.String(), "hidden", "invalid levels fall back to info")
	assert.Contains(t, buf.String(), "visible")
	assert.Nil(t, globalLogger.Load(), "New must not install a global logger")
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		assert.NotNil(t, GetLogger())
	})

	t.Run("global after initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		_, sink := bufferSink()
		Initialize(config.LoggerConfig{Level: "info"}, sink)
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestSetLoggerReplaces(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	buf, sink := bufferSink()

	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, sink)
	replacement := New(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "replacement"}, sink)
	SetLogger(replacement)

	assert.Same(t, replacement, GetLogger())
	GetLogger().Info("after replace")
	Sync()
	assert.Contains(t, buf.String(), "replacement")
}
