package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/gridflow/internal/attribute"
	"github.com/vk/gridflow/internal/config"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/decoupling"
	"github.com/vk/gridflow/internal/executor"
	"github.com/vk/gridflow/internal/mna"
	"github.com/vk/gridflow/internal/simulation"
	"github.com/vk/gridflow/internal/task"
)

// demoResistor and demoSource are a minimal stand-in for the component
// electrical models the core treats as external collaborators (spec.md §1
// lists them out of scope). They exist so simrun has something concrete to
// schedule and solve; a real deployment supplies its own mna.Component set
// built from a netlist loader outside this module's scope.
type demoResistor struct {
	id     string
	n1, n2 int
	r      float64
}

func (c *demoResistor) ID() string { return c.id }

func (c *demoResistor) ApplySystemMatrixStamp(m *mna.Matrix[complex128]) {
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

func (c *demoResistor) ApplyRightSideVectorStamp(mna.Vector[complex128]) {}

type demoSource struct {
	id string
	n1 int
	i  complex128
}

func (c *demoSource) ID() string { return c.id }

func (c *demoSource) ApplySystemMatrixStamp(*mna.Matrix[complex128]) {}

func (c *demoSource) ApplyRightSideVectorStamp(v mna.Vector[complex128]) {
	if c.n1 >= 0 {
		v[c.n1] += c.i
	}
}

const demoNodeCount = 2

// buildSimulation wires a two-resistor demo subsystem matching spec.md §8
// scenario S1 (two resistors in series driven by a current source) into a
// runnable Simulation, plus one decoupling.Line per decoupling_line block
// the scenario file declares (spec.md §8 scenario S5).
func buildSimulation(output io.Writer, scenario *config.Scenario, rank int) (*simulation.Simulation, error) {
	ctx := ctxlog.WithLogger(context.Background(), slog.Default())
	registry := mna.NewRegistry(ctx)
	registry.RegisterComponent(&demoSource{id: "source", n1: 0, i: complex(1, 0)})
	registry.RegisterComponent(&demoResistor{id: "r1", n1: 0, n2: 1, r: 10})
	registry.RegisterComponent(&demoResistor{id: "r2", n1: 1, n2: -1, r: 20})

	attrs := attribute.NewTable()
	voltagesAttr := attrs.Declare("demo.voltages")

	var postStepTasks []*task.Task
	var lines []executor.ExchangeLine
	nodeCount := demoNodeCount
	for _, block := range scenario.DecouplingLines {
		built, err := attachDecouplingLine(block, scenario, registry, attrs, voltagesAttr, nodeCount)
		if err != nil {
			return nil, err
		}
		nodeCount += 2
		postStepTasks = append(postStepTasks, built.tasks...)
		lines = append(lines, built.lines...)
	}

	// The solver is sized against the final node count, after every
	// decoupling line has claimed its pair of matrix nodes, so its stamps
	// land within the system matrix's bounds.
	solver := mna.NewSolver(nodeCount, registry)
	solveTask := task.New("demo.solve", "demo", task.Solve, func(float64, int) error {
		x, err := solver.Solve()
		if err != nil {
			return fmt.Errorf("demo.solve: %w", err)
		}
		attrs.Set(voltagesAttr, x)
		return nil
	})
	solveTask.AttrWrites = []attribute.Id{voltagesAttr}

	tasks := append([]*task.Task{solveTask}, postStepTasks...)

	return simulation.New(output, scenario, rank, registry, nodeCount, tasks, lines, nil)
}

type decouplingWiring struct {
	tasks []*task.Task
	lines []executor.ExchangeLine
}

// attachDecouplingLine constructs the decoupling.Line(s) for one scenario
// decoupling_line block, registers them with the solve registry, and
// declares the signal tasks that feed the solved node voltages back into
// each line's ring buffer once a tick's solve has run. When the block's two
// subsystems are owned by different ranks (a genuine multi-rank scenario),
// it builds a split pair via decoupling.SplitLine and marks both halves as
// ExchangeLine endpoints for the distributed executor; otherwise it builds
// one non-split line that owns both ends locally.
func attachDecouplingLine(block config.DecouplingLineBlock, scenario *config.Scenario, registry *mna.Registry, attrs *attribute.Table, voltagesAttr attribute.Id, nodeCount int) (decouplingWiring, error) {
	nodeA, nodeB := nodeCount, nodeCount+1
	params := decoupling.Params{R: block.R, L: block.L, C: block.C, NominalFrequencyHz: block.NominalFrequencyHz}

	ownerA := executor.Owner(block.SubsystemA, scenario.RankCount)
	ownerB := executor.Owner(block.SubsystemB, scenario.RankCount)

	if scenario.RankCount > 1 && ownerA != ownerB {
		a, b, err := decoupling.SplitLine(block.Name, params, scenario.TimeStep, nodeA, nodeB)
		if err != nil {
			return decouplingWiring{}, fmt.Errorf("simrun: building decoupling line %q: %w", block.Name, err)
		}
		registry.RegisterComponent(a)
		registry.RegisterComponent(b)

		return decouplingWiring{
			tasks: []*task.Task{
				decouplingPostStepTask(a, block.SubsystemA, attrs, voltagesAttr, nodeA),
				decouplingPostStepTask(b, block.SubsystemB, attrs, voltagesAttr, nodeB),
			},
			lines: []executor.ExchangeLine{
				{Line: a, LocalRank: ownerA, RemoteRank: ownerB},
				{Line: b, LocalRank: ownerB, RemoteRank: ownerA},
			},
		}, nil
	}

	ln, err := decoupling.New(block.Name, params, scenario.TimeStep, nodeA, nodeB, false)
	if err != nil {
		return decouplingWiring{}, fmt.Errorf("simrun: building decoupling line %q: %w", block.Name, err)
	}
	registry.RegisterComponent(ln)

	return decouplingWiring{
		tasks: []*task.Task{decouplingPostStepTask(ln, block.SubsystemA, attrs, voltagesAttr, nodeA, nodeB)},
	}, nil
}

// decouplingPostStepTask builds the signal task that advances one
// decoupling.Line's ring buffer from the voltages the solve task just
// wrote. With one node it feeds the line's own end (a split half); with two
// it feeds both ends of a non-split line.
func decouplingPostStepTask(ln *decoupling.Line, subsystem string, attrs *attribute.Table, voltagesAttr attribute.Id, nodes ...int) *task.Task {
	t := task.New(ln.ID()+".poststep", subsystem, task.Signal, func(float64, int) error {
		x, _ := attrs.Get(voltagesAttr).(mna.Vector[complex128])
		ln.PostStep(voltageAt(x, nodes[0]))
		if len(nodes) > 1 {
			ln.PostStepRemote(voltageAt(x, nodes[1]))
		}
		return nil
	})
	t.AttrReads = []attribute.Id{voltagesAttr}
	return t
}

func voltageAt(x mna.Vector[complex128], node int) complex128 {
	if node < 0 || node >= len(x) {
		return 0
	}
	return x[node]
}
