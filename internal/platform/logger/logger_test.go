package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow-api/internal/config"
)

func TestSetupReturnsLogger(t *testing.T) {
	logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: "loud"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestFromContextRoundTrip(t *testing.T) {
	attached := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithLogger(context.Background(), attached)
	assert.Same(t, attached, FromContext(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}
