package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareAndLookup(t *testing.T) {
	tbl := NewTable()
	id := tbl.Declare("sub.component.field")

	got, ok := tbl.Lookup("sub.component.field")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, "sub.component.field", tbl.Name(id))
}

func TestDeclareDuplicatePanics(t *testing.T) {
	tbl := NewTable()
	tbl.Declare("dup")
	assert.Panics(t, func() { tbl.Declare("dup") })
}

func TestLookupMissingReturnsFalse(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Lookup("missing")
	assert.False(t, ok)
}

func TestGetSetRoundTrip(t *testing.T) {
	tbl := NewTable()
	id := tbl.Declare("value")
	tbl.Set(id, 42)
	assert.Equal(t, 42, tbl.Get(id))
}

func TestLenTracksDeclaredCells(t *testing.T) {
	tbl := NewTable()
	assert.Equal(t, 0, tbl.Len())
	tbl.Declare("a")
	tbl.Declare("b")
	assert.Equal(t, 2, tbl.Len())
}
