// Package simulation wires the scenario configuration, task schedule, MNA
// registry, and chosen executor into one runnable simulation instance, the
// domain equivalent of the ambient application bootstrap layer.
package simulation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/executor"
	"github.com/vk/gridflow/internal/measure"
	"github.com/vk/gridflow/internal/mna"
	"github.com/vk/gridflow/internal/schedule"
	"github.com/vk/gridflow/internal/steadystate"
	"github.com/vk/gridflow/internal/task"
	"github.com/vk/gridflow/internal/transport"
)

// Simulation is one runnable instance of a scenario: its decoded
// configuration, task schedule, component registry, and the executor mode
// it was configured for.
type Simulation struct {
	outW     io.Writer
	logger   *slog.Logger
	scenario *config.Scenario
	registry *mna.Registry
	solver   *mna.Solver
	schedule *schedule.Schedule
	rank     int
	lines    []executor.ExchangeLine

	measureSink *measure.Sink
	tickSink    *measure.TickSink
	fabric      transport.Fabric
}

// New builds a Simulation from a decoded scenario and a set of already
// declared tasks (callers assemble tasks from their own component wiring
// before calling New; task declaration itself is outside this package's
// scope, matching the component contract's external-collaborator status).
// nodeCount sizes the system matrix the steady-state warm-up solves
// directly, independent of whatever solve tasks the schedule itself runs.
// lines lists the decoupling-line endpoints that need cross-rank exchange
// under the Distributed executor; it is passed straight through to
// executor.Distributed.Lines on every step and ignored by the other
// executor modes.
func New(outW io.Writer, scenario *config.Scenario, rank int, registry *mna.Registry, nodeCount int, tasks []*task.Task, lines []executor.ExchangeLine, fabric transport.Fabric) (*Simulation, error) {
	logger := newLogger(scenario.LogLevel, scenario.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	if err := registry.ValidateSwitchBound(scenario.SwitchNumBound); err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	logger.Debug("simulation: resolving task schedule", "task_count", len(tasks))
	sched, err := schedule.Build(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("simulation: building schedule: %w", err)
	}

	sim := &Simulation{
		outW:     outW,
		logger:   logger,
		scenario: scenario,
		registry: registry,
		solver:   mna.NewSolver(nodeCount, registry),
		schedule: sched,
		rank:     rank,
		lines:    lines,
		fabric:   fabric,
	}

	if scenario.MeasurementPath != "" {
		sim.measureSink = measure.NewSink()
		sim.tickSink = measure.NewTickSink(scenario.Workers, scenario.MaxTicks)
	}

	return sim, nil
}

// Run executes the scenario for its full configured duration, after an
// optional steady-state warm-up, using the executor mode the scenario
// selected.
func (s *Simulation) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, s.logger)
	s.logger.Info("simulation: starting", "executor_mode", s.scenario.ExecutorMode, "rank", s.rank)

	timeLimit, err := time.ParseDuration(s.scenario.SteadyStateTimeLimit)
	if err != nil {
		return fmt.Errorf("simulation: parsing steady_state_time_limit: %w", err)
	}

	converged, err := steadystate.Run(ctx, steadystate.Params{
		Epsilon:   s.scenario.SteadyStateEpsilon,
		TimeLimit: timeLimit,
	}, s.steadyStateStep)
	if err != nil {
		return fmt.Errorf("simulation: steady-state initialization: %w", err)
	}
	s.logger.Info("simulation: steady-state initialization finished", "converged", converged)

	steps := int(s.scenario.Duration / s.scenario.TimeStep)
	for i := 0; i < steps; i++ {
		simTime := float64(i) * s.scenario.TimeStep
		if err := s.step(ctx, simTime, i); err != nil {
			return fmt.Errorf("simulation: step %d at t=%g failed: %w", i, simTime, err)
		}
	}

	if s.measureSink != nil {
		if err := s.writeMeasurements(); err != nil {
			s.logger.Error("simulation: failed to write measurements", "error", err)
		}
	}

	s.logger.Info("simulation: finished", "steps", steps)
	return nil
}

// steadyStateStep advances every component's switch/signal tasks one step
// with a zero simulation time, then solves the resulting system once. The
// solved node-voltage vector is what steadystate.Run compares across
// iterations for convergence.
func (s *Simulation) steadyStateStep() ([]complex128, error) {
	seq := executor.NewSequential(s.schedule)
	if err := seq.Step(0, 0); err != nil {
		return nil, err
	}
	x, err := s.solver.Solve()
	if err != nil {
		return nil, err
	}
	return []complex128(x), nil
}

func (s *Simulation) step(ctx context.Context, simTime float64, idx int) error {
	switch s.scenario.ExecutorMode {
	case config.Sequential:
		seq := executor.NewSequential(s.schedule)
		seq.Measure = s.measureSink
		return seq.Step(simTime, idx)
	case config.Threaded:
		th := executor.NewThreaded(s.schedule, s.scenario.Workers)
		th.Ticks = s.tickSink
		return th.Step(ctx, simTime, idx)
	case config.Distributed:
		dist := executor.NewDistributed(s.schedule, s.fabric, s.rank)
		dist.Lines = s.lines
		return dist.Step(ctx, simTime, idx)
	default:
		return fmt.Errorf("simulation: unknown executor mode %q", s.scenario.ExecutorMode)
	}
}

func (s *Simulation) writeMeasurements() error {
	path := s.scenario.MeasurementPath
	if s.scenario.RankCount > 1 {
		path = fmt.Sprintf("%s_%d", path, s.rank)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.measureSink.WriteCSV(f)
}
