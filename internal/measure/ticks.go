package measure

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Phase classifies a task by the substring its id contains, the same
// classification the original level schedulers used on a task's display
// name.
type Phase int

const (
	PhaseOther Phase = iota
	PhasePreStep
	PhaseSolve
	PhasePostStep
)

// ClassifyPhase returns the Phase implied by substrings in a task id,
// preferring the first match in PreStep, Solve, PostStep order.
func ClassifyPhase(taskID string) Phase {
	switch {
	case strings.Contains(taskID, "PreStep"):
		return PhasePreStep
	case strings.Contains(taskID, "Solve"):
		return PhaseSolve
	case strings.Contains(taskID, "PostStep"):
		return PhasePostStep
	default:
		return PhaseOther
	}
}

// TickSink accumulates per-thread, per-phase nanosecond timings for one row
// per simulation tick, the way the thread-parallel executor's measurement
// mode does. MaxTicks preallocates row storage; once exceeded, rows are
// appended rather than dropped or overflowing a fixed buffer.
type TickSink struct {
	mu       sync.Mutex
	threads  int
	maxTicks int
	rows     [][]tickRow // rows[tick][thread] = per-phase durations
	overall  []time.Duration
}

type tickRow [3]time.Duration // PreStep, Solve, PostStep

// NewTickSink returns a sink sized for threads worker threads and an
// initial capacity of maxTicks rows; rows beyond maxTicks still work, they
// simply cost a slice growth.
func NewTickSink(threads, maxTicks int) *TickSink {
	return &TickSink{
		threads:  threads,
		maxTicks: maxTicks,
		rows:     make([][]tickRow, 0, maxTicks),
		overall:  make([]time.Duration, 0, maxTicks),
	}
}

// BeginTick reserves the next row and returns its index.
func (s *TickSink) BeginTick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, make([]tickRow, s.threads))
	s.overall = append(s.overall, 0)
	return len(s.rows) - 1
}

// Record adds d to the running total for thread and phase within tick.
func (s *TickSink) Record(tick, thread int, phase Phase, d time.Duration) {
	if phase == PhaseOther {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[tick][thread][phase-1] += d
}

// RecordOverall records the wall-clock duration of the whole tick.
func (s *TickSink) RecordOverall(tick int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overall[tick] += d
}

// WriteCSV writes the "#;t0_PreStep;t0_Solve;t0_PostStep;...;Overall" table.
func (s *TickSink) WriteCSV(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header := []string{"#"}
	for i := 0; i < s.threads; i++ {
		header = append(header,
			fmt.Sprintf("t%d_PreStep", i),
			fmt.Sprintf("t%d_Solve", i),
			fmt.Sprintf("t%d_PostStep", i),
		)
	}
	header = append(header, "Overall")

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, row := range s.rows {
		rec := []string{fmt.Sprintf("%d", i+1)}
		for _, thread := range row {
			for _, d := range thread {
				rec = append(rec, fmt.Sprintf("%.9f", d.Seconds()))
			}
		}
		rec = append(rec, fmt.Sprintf("%.9f", s.overall[i].Seconds()))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
