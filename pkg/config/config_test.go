package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNJobsZeroMapsToCPUCount(t *testing.T) {
	cfg, err := New(Options{CachePath: t.TempDir(), Colors: boolPtr(false), NJobs: 0})
	require.NoError(t, err)
	assert.Greater(t, cfg.NJobs, 0)
}

func TestInvalidPyColorsIsUsageError(t *testing.T) {
	t.Setenv("PY_COLORS", "xyz")
	_, err := New(Options{CachePath: t.TempDir()})
	require.Error(t, err)
}

func TestExplicitColorsFlagWins(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	cfg, err := New(Options{CachePath: t.TempDir(), Colors: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, cfg.Colors)
}

func TestNoColorEnvForcesColorsOff(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	cfg, err := New(Options{CachePath: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, cfg.Colors)
}

func TestPythonHashSeedGeneratedWhenAbsent(t *testing.T) {
	cfg, err := New(Options{CachePath: t.TempDir(), Colors: boolPtr(false)})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Environ["PYTHONHASHSEED"])
}

func TestReportUnusedStepArgs(t *testing.T) {
	unused := ReportUnusedStepArgs(
		map[string][]string{"pytest": {"-k", "foo"}, "lint": {"--fix"}},
		map[string]bool{"lint": true},
	)
	assert.Equal(t, []string{"pytest"}, unused)
}

func boolPtr(b bool) *bool { return &b }
