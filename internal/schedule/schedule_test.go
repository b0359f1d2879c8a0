package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridflow/internal/attribute"
	"github.com/vk/gridflow/internal/ctxlog"
	"github.com/vk/gridflow/internal/task"
)

func noop(float64, int) error { return nil }

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func TestBuild(t *testing.T) {
	t.Run("linear chain orders by dependency", func(t *testing.T) {
		tbl := attribute.NewTable()
		a := tbl.Declare("sub.a")
		b := tbl.Declare("sub.b")

		t1 := task.New("writer", "sub", task.Component, noop)
		t1.AttrWrites = []attribute.Id{a}
		t2 := task.New("middle", "sub", task.Component, noop)
		t2.AttrReads = []attribute.Id{a}
		t2.AttrWrites = []attribute.Id{b}
		t3 := task.New("reader", "sub", task.Component, noop)
		t3.AttrReads = []attribute.Id{b}

		// Deliberately out of dependency order to exercise the sort.
		s, err := Build(testContext(), []*task.Task{t3, t1, t2})
		require.NoError(t, err)
		require.Len(t, s.Tasks, 3)

		pos := map[string]int{}
		for i, tk := range s.Tasks {
			pos[tk.ID] = i
		}
		assert.Less(t, pos["writer"], pos["middle"])
		assert.Less(t, pos["middle"], pos["reader"])
	})

	t.Run("independent tasks land in the same level", func(t *testing.T) {
		tbl := attribute.NewTable()
		_ = tbl

		t1 := task.New("a", "sub", task.Component, noop)
		t2 := task.New("b", "sub", task.Component, noop)

		s, err := Build(testContext(), []*task.Task{t1, t2})
		require.NoError(t, err)
		require.Len(t, s.Levels, 1)
		assert.Len(t, s.Levels[0], 2)
	})

	t.Run("self-write-then-read is not a cycle", func(t *testing.T) {
		tbl := attribute.NewTable()
		a := tbl.Declare("sub.a")

		t1 := task.New("solo", "sub", task.Component, noop)
		t1.AttrWrites = []attribute.Id{a}
		t1.AttrReads = []attribute.Id{a}

		s, err := Build(testContext(), []*task.Task{t1})
		require.NoError(t, err)
		assert.Len(t, s.Levels, 1)
	})

	t.Run("cyclic attribute dependency is rejected", func(t *testing.T) {
		tbl := attribute.NewTable()
		a := tbl.Declare("sub.a")
		b := tbl.Declare("sub.b")

		t1 := task.New("t1", "sub", task.Component, noop)
		t1.AttrReads = []attribute.Id{b}
		t1.AttrWrites = []attribute.Id{a}
		t2 := task.New("t2", "sub", task.Component, noop)
		t2.AttrReads = []attribute.Id{a}
		t2.AttrWrites = []attribute.Id{b}

		_, err := Build(testContext(), []*task.Task{t1, t2})
		require.Error(t, err)
		var schedErr *SchedulingError
		assert.ErrorAs(t, err, &schedErr)
	})

	t.Run("level assignment respects chain length", func(t *testing.T) {
		tbl := attribute.NewTable()
		a := tbl.Declare("sub.a")
		b := tbl.Declare("sub.b")
		c := tbl.Declare("sub.c")

		t1 := task.New("t1", "sub", task.Component, noop)
		t1.AttrWrites = []attribute.Id{a}
		t2 := task.New("t2", "sub", task.Component, noop)
		t2.AttrReads = []attribute.Id{a}
		t2.AttrWrites = []attribute.Id{b}
		t3 := task.New("t3", "sub", task.Component, noop)
		t3.AttrReads = []attribute.Id{b}
		t3.AttrWrites = []attribute.Id{c}

		s, err := Build(testContext(), []*task.Task{t1, t2, t3})
		require.NoError(t, err)
		require.Len(t, s.Levels, 3)
		assert.Equal(t, "t1", s.Levels[0][0].ID)
		assert.Equal(t, "t2", s.Levels[1][0].ID)
		assert.Equal(t, "t3", s.Levels[2][0].ID)
	})
}
