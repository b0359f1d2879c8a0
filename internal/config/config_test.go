package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeScenario(t, `
time_step = 0.0001
duration  = 1.0
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Sequential, s.ExecutorMode)
	assert.Equal(t, 1, s.Workers)
	assert.Equal(t, 64, s.SwitchNumBound)
}

func TestLoadDecodesDecouplingLines(t *testing.T) {
	path := writeScenario(t, `
time_step = 0.0001
duration  = 1.0
executor_mode = "distributed"
rank_count = 2

decoupling_line "tie1" {
  r = 0.0
  l = 1e-3
  c = 1e-6
  subsystem_a = "north"
  subsystem_b = "south"
}
`)
	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.DecouplingLines, 1)
	assert.Equal(t, "tie1", s.DecouplingLines[0].Name)
	assert.Equal(t, Distributed, s.ExecutorMode)
	assert.Equal(t, 2, s.RankCount)
}

func TestLoadRejectsInvalidExecutorMode(t *testing.T) {
	path := writeScenario(t, `
time_step = 0.0001
duration  = 1.0
executor_mode = "bogus"
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsNonPositiveTimeStep(t *testing.T) {
	path := writeScenario(t, `
time_step = 0
duration  = 1.0
`)
	_, err := Load(path)
	require.Error(t, err)
}
