// ABOUTME: Tests for logger setup
// ABOUTME: Checks level parsing and file output
package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	logger := log.Logger
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
	})
}

func TestSetupWritesToFile(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "radio.log")

	closeFn, err := Setup(Options{Level: "debug", File: path})
	require.NoError(t, err)

	Component("test").Debug().Str("url", "http://radio.example").Msg("Starting internet stream")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), "Starting internet stream")
}

func TestSetupRespectsLevel(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "radio.log")

	closeFn, err := Setup(Options{Level: "warn", File: path})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestSetupRejectsBadLevel(t *testing.T) {
	restoreGlobals(t)
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestSetupWithoutOutputs(t *testing.T) {
	restoreGlobals(t)
	closeFn, err := Setup(Options{})
	require.NoError(t, err)
	assert.NoError(t, closeFn())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
