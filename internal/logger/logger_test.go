package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, parseLevel(" error ", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, parseLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, parseLevel("verbose", slog.LevelDebug))
}

func TestInit(t *testing.T) {
	Init(true, "warn", "")
	assert.NotNil(t, Log)
	assert.False(t, Log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, Log.Enabled(context.Background(), slog.LevelWarn))

	Init(false, "", "")
	assert.True(t, Log.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, Log.Enabled(context.Background(), slog.LevelDebug))
}
