package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToFile(t *testing.T) {
	require.NoError(t, Close())
	path := filepath.Join(t.TempDir(), "logs", "pagestore.log")

	require.NoError(t, Init(Config{Level: LevelDebug, OutputPath: path, Format: "json"}))
	assert.Error(t, Init(Config{}), "second Init must fail")

	WithComponent("buffer").Debug("evict", "frame", 3)
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"buffer"`)
	assert.Contains(t, string(data), `"frame":3`)
}

func TestGetLoggerLazyDefault(t *testing.T) {
	require.NoError(t, Close())
	assert.NotNil(t, GetLogger())
	assert.NotNil(t, WithIndex("idx"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
