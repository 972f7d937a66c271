package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"batch size", func(c *Config) { c.BatchSize = -1 }},
		{"gamma", func(c *Config) { c.Gamma = 1.5 }},
		{"exploration rate", func(c *Config) { c.ExplorationRate = -0.1 }},
		{"replay type", func(c *Config) { c.ReplayType = "bogus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOverrideOnlyTouchesSetFields(t *testing.T) {
	base := Default()
	seed := int64(7)
	overridden := base.Override(Config{BatchSize: 128, Seed: &seed})

	assert.Equal(t, 128, overridden.BatchSize)
	assert.Equal(t, int64(7), *overridden.Seed)
	assert.Equal(t, base.LearningRate, overridden.LearningRate)
	assert.Equal(t, base.HiddenLayers, overridden.HiddenLayers)
}

func TestBuiltinProfiles(t *testing.T) {
	for _, name := range []string{"fast-debug", "long-train", "eval-only"} {
		cfg, ok := BuiltinProfile(name)
		require.True(t, ok, name)
		require.NoError(t, cfg.Validate())
	}

	_, ok := BuiltinProfile("does-not-exist")
	assert.False(t, ok)
}

func TestLoadProfilesFromHCL(t *testing.T) {
	profiles, err := LoadProfiles("../../profiles/fast-debug.hcl")
	require.NoError(t, err)

	cfg, ok := profiles["fast-debug"]
	require.True(t, ok)
	assert.Equal(t, 10, cfg.GamesPerCycle)
	assert.Equal(t, 40, cfg.MaxStepsPerGame)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(12345), *cfg.Seed)
}
