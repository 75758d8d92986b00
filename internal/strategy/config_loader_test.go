package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	p, found, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, DefaultParams(), p)
	assert.Equal(t, 30, p.MinSamples)
	assert.Equal(t, 0.001, p.Epsilon)
	assert.Equal(t, 5, p.TrendWindow)
	assert.Equal(t, 2.2, p.InitialThreshold)
	assert.Equal(t, 100, p.BufferCapacity)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategy:
  min_samples: 40
  epsilon: 0.002
  initial_threshold: 2.0
`), 0o644))

	p, found, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 40, p.MinSamples)
	assert.Equal(t, 0.002, p.Epsilon)
	assert.Equal(t, 2.0, p.InitialThreshold)
	assert.Equal(t, DefaultTrendWindow, p.TrendWindow)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	malformed := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(malformed, []byte("strategy: [1, 2"), 0o644))
	_, _, err := LoadConfig(malformed)
	assert.Error(t, err)

	tooLarge := filepath.Join(dir, "large.yaml")
	require.NoError(t, os.WriteFile(tooLarge, []byte("strategy:\n  min_samples: 500\n"), 0o644))
	_, _, err = LoadConfig(tooLarge)
	assert.Error(t, err)
}
