package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/gridflow/internal/measure"
	"github.com/vk/gridflow/internal/schedule"
)

// Threaded runs each level of a schedule across a bounded pool of worker
// goroutines, joining at a barrier before starting the next level. This is
// the Go analog of the original's omp-parallel-for-per-level structure: one
// errgroup per level stands in for one omp parallel region, and
// errgroup.Group.SetLimit stands in for num_threads(mNumThreads).
type Threaded struct {
	Schedule *schedule.Schedule
	Workers  int
	Ticks    *measure.TickSink // optional; nil disables per-tick timing
}

// NewThreaded returns a Threaded executor for s with workers concurrent
// goroutines per level.
func NewThreaded(s *schedule.Schedule, workers int) *Threaded {
	if workers <= 0 {
		workers = 1
	}
	return &Threaded{Schedule: s, Workers: workers}
}

// Step runs every level of the schedule, fanning each level's tasks out
// across e.Workers goroutines and joining before moving to the next level.
func (e *Threaded) Step(ctx context.Context, time_ float64, step int) error {
	var tickIdx int
	var tickStart time.Time
	if e.Ticks != nil {
		tickIdx = e.Ticks.BeginTick()
		tickStart = time.Now()
	}

	for _, level := range e.Schedule.Levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.Workers)

		for i, t := range level {
			t := t
			thread := i % e.Workers
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				start := time.Now()
				err := t.Run(time_, step)
				if e.Ticks != nil {
					phase := measure.ClassifyPhase(t.ID)
					e.Ticks.Record(tickIdx, thread, phase, time.Since(start))
				}
				if err != nil {
					return fmt.Errorf("task %s failed at step %d: %w", t.ID, step, err)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
	}

	if e.Ticks != nil {
		e.Ticks.RecordOverall(tickIdx, time.Since(tickStart))
	}
	return nil
}
