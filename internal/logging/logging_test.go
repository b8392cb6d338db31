package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_LevelAndFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Options{Level: "WARN", File: file})
	require.NoError(t, err)

	log.Info("不应出现")
	log.Warn("需要出现")
	_ = log.Sync()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	require.NotContains(t, string(b), "不应出现")
	require.Contains(t, string(b), "WARN")
	require.Contains(t, string(b), "需要出现")
	require.NotContains(t, string(b), "\x1b[", "写文件时不着色")
}

func TestNew_DefaultAndInvalidLevel(t *testing.T) {
	log, err := New(Options{})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.InfoLevel))
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Options{Level: "loud"})
	require.Error(t, err)
}
