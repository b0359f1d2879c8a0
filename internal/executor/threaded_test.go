package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridflow/internal/attribute"
	"github.com/vk/gridflow/internal/measure"
	"github.com/vk/gridflow/internal/schedule"
	"github.com/vk/gridflow/internal/task"
)

func TestThreadedStepRunsIndependentLevelConcurrently(t *testing.T) {
	var mu sync.Mutex
	var started []string

	makeTask := func(id string) *task.Task {
		return task.New(id, "sub", task.Component, func(float64, int) error {
			mu.Lock()
			started = append(started, id)
			mu.Unlock()
			return nil
		})
	}

	t1, t2, t3 := makeTask("a"), makeTask("b"), makeTask("c")
	sched, err := schedule.Build(testContext(), []*task.Task{t1, t2, t3})
	require.NoError(t, err)
	require.Len(t, sched.Levels, 1)

	th := NewThreaded(sched, 3)
	require.NoError(t, th.Step(context.Background(), 0, 0))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, started)
}

func TestThreadedStepRespectsLevelBarrier(t *testing.T) {
	tbl := attribute.NewTable()
	a := tbl.Declare("th.a")

	var writerDone time.Time
	var readerStart time.Time

	writer := task.New("writer", "sub", task.Component, func(float64, int) error {
		time.Sleep(5 * time.Millisecond)
		writerDone = time.Now()
		return nil
	})
	writer.AttrWrites = []attribute.Id{a}

	reader := task.New("reader", "sub", task.Component, func(float64, int) error {
		readerStart = time.Now()
		return nil
	})
	reader.AttrReads = []attribute.Id{a}

	sched, err := schedule.Build(testContext(), []*task.Task{writer, reader})
	require.NoError(t, err)
	require.Len(t, sched.Levels, 2)

	th := NewThreaded(sched, 2)
	require.NoError(t, th.Step(context.Background(), 0, 0))

	assert.False(t, readerStart.Before(writerDone))
}

func TestThreadedStepPropagatesTaskError(t *testing.T) {
	failing := task.New("boom", "sub", task.Component, func(float64, int) error {
		return assert.AnError
	})
	sched, err := schedule.Build(testContext(), []*task.Task{failing})
	require.NoError(t, err)

	th := NewThreaded(sched, 1)
	err = th.Step(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestThreadedStepRecordsTickMeasurements(t *testing.T) {
	preStep := task.New("node.PreStep", "sub", task.Component, func(float64, int) error { return nil })
	sched, err := schedule.Build(testContext(), []*task.Task{preStep})
	require.NoError(t, err)

	th := NewThreaded(sched, 1)
	th.Ticks = measure.NewTickSink(1, 10)
	require.NoError(t, th.Step(context.Background(), 0, 0))
}
