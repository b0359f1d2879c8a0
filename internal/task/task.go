// Package task defines the unit of work scheduled and executed by
// internal/schedule and internal/executor: a named step tagged with the
// subsystem it belongs to and the attribute cells it reads and writes.
package task

import (
	"sync/atomic"

	"github.com/vk/gridflow/internal/attribute"
)

// Kind labels the handful of task shapes a simulation declares. It never
// drives dispatch (see internal/mna.Registry for that), and internal/schedule
// does not read it: ordering comes only from attribute reads and writes.
type Kind int

const (
	// Component is a plain MNA stamp/update task.
	Component Kind = iota
	// Switch is a task that may flip the active switch-state key.
	Switch
	// Solve performs the switched-system solve for one step.
	Solve
	// Signal is a signal-only task (e.g. a decoupling line endpoint).
	Signal
)

// Func is the work a Task performs for one simulation step.
type Func func(time float64, step int) error

// Task is a single scheduled unit of work.
type Task struct {
	ID        string
	Subsystem string
	Kind      Kind

	// AttrReads/AttrWrites are the attribute cells this task reads from and
	// writes to during the current step; PrevStepReads are cells read as
	// they stood at the end of the previous step and therefore never
	// contribute a same-step edge.
	AttrReads     []attribute.Id
	AttrWrites    []attribute.Id
	PrevStepReads []attribute.Id

	Run Func

	depCount atomic.Int32
}

// New constructs a Task with a zero dependency counter. schedule.Build does
// not set the counter; only an explicit SetDepCount call does.
func New(id, subsystem string, kind Kind, run Func) *Task {
	return &Task{ID: id, Subsystem: subsystem, Kind: kind, Run: run}
}

// SetDepCount initializes the unmet-dependency counter. The executors in
// internal/executor run levels in order and do not consult it.
func (t *Task) SetDepCount(n int32) { t.depCount.Store(n) }

// DepCount returns the current number of unmet dependencies.
func (t *Task) DepCount() int32 { return t.depCount.Load() }

// DecrementDepCount atomically decrements the dependency counter and
// returns the new value.
func (t *Task) DecrementDepCount() int32 { return t.depCount.Add(-1) }
