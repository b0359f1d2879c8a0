// Package schedule builds a level schedule from a set of tasks by deriving
// dependency edges from the attribute cells each task reads and writes.
package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/gridflow/internal/attribute"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/task"
)

// SchedulingError reports a structural defect in the task graph, such as a
// dependency cycle, that prevents a schedule from being built.
type SchedulingError struct {
	Msg string
}

func (e *SchedulingError) Error() string { return e.Msg }

// Schedule is the result of resolving a task set's attribute dependencies
// into a level-ordered plan.
type Schedule struct {
	Tasks []*task.Task
	// Levels[i] holds the tasks that may run concurrently at level i; level
	// i+1 tasks may only start once every task in level i has finished.
	Levels [][]*task.Task

	deps       map[string]map[string]struct{} // taskID -> set of predecessor taskIDs
	dependents map[string]map[string]struct{}
}

// Build derives the dependency graph for tasks from their declared attribute
// read/write sets and returns the resulting level schedule.
//
// For every attribute written by task W and read (same-step) by task R, an
// edge W -> R is added. Self-loops (a task reading an attribute it itself
// writes) and edges implied only by PrevStepReads are discarded, since a
// task may freely read the previous step's value of an attribute it is
// about to overwrite.
func Build(ctx context.Context, tasks []*task.Task) (*Schedule, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("schedule: resolving attribute dependencies", "task_count", len(tasks))

	s := &Schedule{
		Tasks:      tasks,
		deps:       make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
	for _, t := range tasks {
		s.deps[t.ID] = make(map[string]struct{})
		s.dependents[t.ID] = make(map[string]struct{})
	}

	writers := make(map[attribute.Id][]*task.Task)
	for _, t := range tasks {
		for _, id := range t.AttrWrites {
			writers[id] = append(writers[id], t)
		}
	}

	for _, reader := range tasks {
		for _, id := range reader.AttrReads {
			for _, writer := range writers[id] {
				if writer.ID == reader.ID {
					continue
				}
				s.addEdge(writer.ID, reader.ID)
			}
		}
	}

	if err := s.detectCycles(); err != nil {
		return nil, err
	}

	ordered, err := s.topologicalSort()
	if err != nil {
		return nil, err
	}
	s.Tasks = ordered
	s.levelSchedule()

	logger.Debug("schedule: built", "level_count", len(s.Levels))
	return s, nil
}

func (s *Schedule) addEdge(fromID, toID string) {
	if _, exists := s.deps[toID][fromID]; exists {
		return
	}
	s.deps[toID][fromID] = struct{}{}
	s.dependents[fromID][toID] = struct{}{}
}

// detectCycles runs a standard DFS with permanent/temporary marks.
func (s *Schedule) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(s.Tasks))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &SchedulingError{Msg: fmt.Sprintf("dependency cycle detected involving %s (path: %v)", id, append(path, id))}
		}
		state[id] = visiting
		path = append(path, id)
		for dep := range s.deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, t := range s.Tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// topologicalSort implements Kahn's algorithm. The initial frontier and
// every subsequent batch of newly-ready tasks are processed in the original
// insertion order of s.Tasks, so the result is deterministic across runs.
func (s *Schedule) topologicalSort() ([]*task.Task, error) {
	byID := make(map[string]*task.Task, len(s.Tasks))
	order := make(map[string]int, len(s.Tasks))
	for i, t := range s.Tasks {
		byID[t.ID] = t
		order[t.ID] = i
	}

	remaining := make(map[string]int, len(s.Tasks))
	for _, t := range s.Tasks {
		remaining[t.ID] = len(s.deps[t.ID])
	}

	var ready []string
	for _, t := range s.Tasks {
		if remaining[t.ID] == 0 {
			ready = append(ready, t.ID)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return order[ready[i]] < order[ready[j]] })

	var result []*task.Task
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, byID[id])

		var freed []string
		for dependent := range s.dependents[id] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sort.Slice(freed, func(i, j int) bool { return order[freed[i]] < order[freed[j]] })
		ready = append(ready, freed...)
		sort.Slice(ready, func(i, j int) bool { return order[ready[i]] < order[ready[j]] })
	}

	if len(result) != len(s.Tasks) {
		return nil, &SchedulingError{Msg: "dependency cycle detected: topological sort could not order all tasks"}
	}
	return result, nil
}

// levelSchedule assigns level(t) = 1 + max(level(p)) over predecessors p,
// with level(t) = 0 for tasks with no predecessors.
func (s *Schedule) levelSchedule() {
	level := make(map[string]int, len(s.Tasks))
	maxLevel := 0
	for _, t := range s.Tasks {
		lvl := 0
		for dep := range s.deps[t.ID] {
			if level[dep]+1 > lvl {
				lvl = level[dep] + 1
			}
		}
		level[t.ID] = lvl
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	s.Levels = make([][]*task.Task, maxLevel+1)
	for _, t := range s.Tasks {
		s.Levels[level[t.ID]] = append(s.Levels[level[t.ID]], t)
	}
}

// Dependencies returns the direct predecessor task ids of id.
func (s *Schedule) Dependencies(id string) []string {
	out := make([]string, 0, len(s.deps[id]))
	for dep := range s.deps[id] {
		out = append(out, dep)
	}
	return out
}

// Dependents returns the direct successor task ids of id.
func (s *Schedule) Dependents(id string) []string {
	out := make([]string, 0, len(s.dependents[id]))
	for dep := range s.dependents[id] {
		out = append(out, dep)
	}
	return out
}
