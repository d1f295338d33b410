package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsZeroLambdaWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayLambda = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_SkippedWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.DecayLambda = 0
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNegativeWeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecencyWeight = -1
	require.Error(t, cfg.Validate())
}

func TestApplyFromEnv_OverridesDefaults(t *testing.T) {
	t.Setenv("MEMORY_STORE_DECAY_LAMBDA", "0.08")
	t.Setenv("MEMORY_STORE_DELETION_THRESHOLD", "0.25")
	t.Setenv("MEMORY_STORE_DB_URL", "postgres://localhost/test")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyFromEnv())
	require.InDelta(t, 0.08, cfg.DecayLambda, 1e-9)
	require.InDelta(t, 0.25, cfg.DeletionThreshold, 1e-9)
	require.Equal(t, "postgres://localhost/test", cfg.DBURL)
}

func TestApplyFromEnv_RejectsInvalidFloat(t *testing.T) {
	t.Setenv("MEMORY_STORE_DECAY_LAMBDA", "not-a-number")
	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyFromEnv())
}

func TestResolvedTempDir_DefaultsToOSTempDir(t *testing.T) {
	require.Equal(t, os.TempDir(), ResolvedTempDir())
}
