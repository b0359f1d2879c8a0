// Package executor runs a schedule.Schedule for each simulation step, in one
// of three modes: Sequential, Threaded (fork-join per level), or Distributed
// (per-rank subsystem ownership with a transport.Fabric exchange).
package executor

import (
	"fmt"

	"github.com/vk/gridflow/internal/measure"
	"github.com/vk/gridflow/internal/schedule"
)

// Sequential runs every task of every level in schedule order, on the
// calling goroutine. It is the baseline executor scenario S1/S2 validate
// other modes against.
type Sequential struct {
	Schedule *schedule.Schedule
	Measure  *measure.Sink // optional; nil disables timing
}

// NewSequential returns a Sequential executor for s.
func NewSequential(s *schedule.Schedule) *Sequential {
	return &Sequential{Schedule: s}
}

// Step runs every task once, in level order, for the given simulation time
// and step index.
func (e *Sequential) Step(time float64, step int) error {
	for _, level := range e.Schedule.Levels {
		for _, t := range level {
			if e.Measure != nil {
				start := e.Measure.Clock()
				err := t.Run(time, step)
				e.Measure.Record(t.ID, e.Measure.Clock().Sub(start))
				if err != nil {
					return fmt.Errorf("task %s failed at step %d: %w", t.ID, step, err)
				}
				continue
			}
			if err := t.Run(time, step); err != nil {
				return fmt.Errorf("task %s failed at step %d: %w", t.ID, step, err)
			}
		}
	}
	return nil
}
