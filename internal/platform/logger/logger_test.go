package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregoryb/recordscrape/internal/config"
)

func TestSetup(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			logger, err := Setup(config.ServerConfig{LogLevel: level})
			require.NoError(t, err, "Setup should succeed for level %q", level)
			require.NotNil(t, logger, "Setup should return a logger for level %q", level)
		}
	})

	t.Run("level is case-insensitive", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "DEBUG"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(nil, slog.LevelDebug))
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "verbose"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.False(t, logger.Enabled(nil, slog.LevelDebug))
		assert.True(t, logger.Enabled(nil, slog.LevelInfo))
	})

	t.Run("sets default logger", func(t *testing.T) {
		logger, err := Setup(config.ServerConfig{LogLevel: "info"})
		require.NoError(t, err)
		assert.Equal(t, logger, slog.Default())
	})
}
