package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/schedule"
	"github.com/vk/gridflow/internal/task"
	"github.com/vk/gridflow/internal/transport"
)

func noopRun(float64, int) error { return nil }

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func buildTestSchedule(t *testing.T, subsystems []string) *schedule.Schedule {
	t.Helper()
	tasks := make([]*task.Task, 0, len(subsystems))
	for _, sub := range subsystems {
		tasks = append(tasks, task.New(sub, sub, task.Component, noopRun))
	}
	sched, err := schedule.Build(testContext(), tasks)
	require.NoError(t, err)
	return sched
}

func TestDistributedOnlyRunsOwnedSubsystems(t *testing.T) {
	subs := []string{"north", "south", "east", "west"}
	sched := buildTestSchedule(t, subs)

	fabrics := transport.NewLocalFabric("dist-test", 2)

	var mu sync.Mutex
	ranCount := map[int]int{}

	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		rank := rank
		wg.Add(1)
		go func() {
			defer wg.Done()
			dist := NewDistributed(sched, fabrics[rank], rank)
			dist.Schedule = annotateRuns(sched, rank, &mu, ranCount)
			err := dist.Step(context.Background(), 0, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total := 0
	mu.Lock()
	for _, c := range ranCount {
		total += c
	}
	mu.Unlock()
	assert.Equal(t, len(subs), total)
}

func TestOwnerOfIsStableAcrossCalls(t *testing.T) {
	owner1 := ownerOf("grid-a", 4)
	owner2 := ownerOf("grid-a", 4)
	assert.Equal(t, owner1, owner2)
}

// annotateRuns wraps each task's Run in sched with one that records which
// rank executed it, without mutating the shared schedule tasks used by
// other ranks' goroutines.
func annotateRuns(sched *schedule.Schedule, rank int, mu *sync.Mutex, counts map[int]int) *schedule.Schedule {
	wrapped := &schedule.Schedule{Levels: make([][]*task.Task, len(sched.Levels))}
	for i, level := range sched.Levels {
		newLevel := make([]*task.Task, len(level))
		for j, t := range level {
			t := t
			nt := task.New(t.ID, t.Subsystem, t.Kind, func(time float64, step int) error {
				mu.Lock()
				counts[rank]++
				mu.Unlock()
				return t.Run(time, step)
			})
			newLevel[j] = nt
		}
		wrapped.Levels[i] = newLevel
	}
	return wrapped
}
