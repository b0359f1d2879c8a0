package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridflow/internal/config"
)

func demoScenario() *config.Scenario {
	return &config.Scenario{
		TimeStep:             1e-4,
		Duration:             3e-4,
		ExecutorMode:         config.Sequential,
		Workers:              1,
		SwitchNumBound:       64,
		SteadyStateEpsilon:   1e-6,
		SteadyStateTimeLimit: "10ms",
		MaxTicks:             10,
		RankCount:            1,
		LogLevel:             "error",
		LogFormat:            "text",
	}
}

func TestBuildSimulationRunsARealSolve(t *testing.T) {
	var out bytes.Buffer
	sim, err := buildSimulation(&out, demoScenario(), 0)
	require.NoError(t, err)
	require.NotNil(t, sim)

	require.NoError(t, sim.Run(context.Background()))
}

func TestBuildSimulationAttachesNonSplitDecouplingLine(t *testing.T) {
	var out bytes.Buffer
	scenario := demoScenario()
	scenario.DecouplingLines = []config.DecouplingLineBlock{
		{Name: "tieline", R: 1, L: 1e-3, C: 1e-3, SubsystemA: "demo", SubsystemB: "demo", NominalFrequencyHz: 50},
	}

	sim, err := buildSimulation(&out, scenario, 0)
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
}

func TestBuildSimulationAttachesSplitDecouplingLineAcrossRanks(t *testing.T) {
	var out bytes.Buffer
	scenario := demoScenario()
	scenario.RankCount = 2
	scenario.DecouplingLines = []config.DecouplingLineBlock{
		{Name: "tieline", R: 1, L: 1, C: 1, SubsystemA: "alpha", SubsystemB: "gamma"},
	}

	sim, err := buildSimulation(&out, scenario, 0)
	require.NoError(t, err)
	assert.NotNil(t, sim)
}

func TestBuildSimulationRejectsDecouplingLineWithDelayShorterThanTimeStep(t *testing.T) {
	var out bytes.Buffer
	scenario := demoScenario()
	scenario.TimeStep = 1
	scenario.DecouplingLines = []config.DecouplingLineBlock{
		{Name: "toofast", R: 1, L: 1e-9, C: 1e-9, SubsystemA: "demo", SubsystemB: "demo"},
	}

	_, err := buildSimulation(&out, scenario, 0)
	require.Error(t, err)
}
