package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"instanceId": "inst-1"})

	log.Info("step dispatched", map[string]interface{}{"step": "Roll out", "position": 3})
	log.WithError(errors.New("exit status 2")).Error("step failed", nil)
	log.Warn("retrying", map[string]interface{}{"cause": errors.New("timeout")})

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Equal(t, "step dispatched", first.Message)
	assert.Equal(t, []string{"instanceId", "position", "step"}, fieldKeys(first.Context))

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "exit status 2", entries[1].ContextMap()["error"])
	assert.Equal(t, "timeout", entries[2].ContextMap()["cause"])
}

func fieldKeys(fields []zapcore.Field) []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	return keys
}

func TestNew_Levels(t *testing.T) {
	assert.True(t, New("debug", "json").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn", "console").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, New("nonsense", "json").Core().Enabled(zapcore.InfoLevel), "unknown levels fall back to info")

	path := filepath.Join(t.TempDir(), "chatops.log")
	l := NewWithOutput("info", "json", path)
	l.Info("written")
	require.NoError(t, l.Sync())
	assert.FileExists(t, path)
}
