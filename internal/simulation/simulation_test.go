package simulation

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/mna"
	"github.com/vk/gridflow/internal/task"
)

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

type testResistor struct {
	id     string
	n1, n2 int
	r      float64
}

func (c *testResistor) ID() string { return c.id }
func (c *testResistor) ApplySystemMatrixStamp(m *mna.Matrix[complex128]) {
	y := complex(1/c.r, 0)
	if c.n1 >= 0 {
		m.Add(c.n1, c.n1, y)
	}
	if c.n2 >= 0 {
		m.Add(c.n2, c.n2, y)
	}
	if c.n1 >= 0 && c.n2 >= 0 {
		m.Add(c.n1, c.n2, -y)
		m.Add(c.n2, c.n1, -y)
	}
}
func (c *testResistor) ApplyRightSideVectorStamp(mna.Vector[complex128]) {}

type testSource struct {
	id string
	n1 int
	i  complex128
}

func (c *testSource) ID() string                                  { return c.id }
func (c *testSource) ApplySystemMatrixStamp(*mna.Matrix[complex128]) {}
func (c *testSource) ApplyRightSideVectorStamp(v mna.Vector[complex128]) {
	v[c.n1] += c.i
}

func testScenario() *config.Scenario {
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

func buildRegistry() *mna.Registry {
	reg := mna.NewRegistry(testContext())
	reg.RegisterComponent(&testSource{id: "source", n1: 0, i: complex(1, 0)})
	reg.RegisterComponent(&testResistor{id: "r1", n1: 0, n2: 1, r: 10})
	reg.RegisterComponent(&testResistor{id: "r2", n1: 1, n2: -1, r: 20})
	return reg
}

func TestNewBuildsSchedule(t *testing.T) {
	var out bytes.Buffer
	noop := task.New("noop", "sub", task.Component, func(float64, int) error { return nil })

	sim, err := New(&out, testScenario(), 0, buildRegistry(), 2, []*task.Task{noop}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, sim)
	assert.Len(t, sim.schedule.Levels, 1)
}

func TestRunCompletesSequentialScenario(t *testing.T) {
	var out bytes.Buffer
	sim, err := New(&out, testScenario(), 0, buildRegistry(), 2, nil, nil, nil)
	require.NoError(t, err)

	err = sim.Run(context.Background())
	require.NoError(t, err)
}

func TestRunRejectsUnknownExecutorMode(t *testing.T) {
	var out bytes.Buffer
	scenario := testScenario()
	scenario.ExecutorMode = "bogus"

	sim, err := New(&out, scenario, 0, buildRegistry(), 2, nil, nil, nil)
	require.NoError(t, err)

	err = sim.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown executor mode")
}

func TestRunWritesMeasurementsWhenPathSet(t *testing.T) {
	var out bytes.Buffer
	scenario := testScenario()
	scenario.MeasurementPath = t.TempDir() + "/measure.csv"

	measured := task.New("measured", "sub", task.Component, func(float64, int) error { return nil })

	sim, err := New(&out, scenario, 0, buildRegistry(), 2, []*task.Task{measured}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, sim.Run(context.Background()))
}
