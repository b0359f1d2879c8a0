// Package attribute provides a flat, arena-backed table of attribute cells.
// Tasks reference attributes by Id rather than by pointer, so the task graph
// holds no back-references into the attribute table and can be rebuilt or
// discarded independently of it.
package attribute

import (
	"fmt"
	"sync"
)

// Id addresses a single attribute cell in a Table.
type Id int32

// Invalid is a sentinel Id that never names a real cell (ids start at 0).
const Invalid Id = -1

type cell struct {
	name  string
	value any
}

// Table is an arena of attribute cells, keyed by Id and by qualified name.
// Every method takes the table's read/write lock, so it is safe for
// concurrent use.
type Table struct {
	mu     sync.RWMutex
	cells  []cell
	byName map[string]Id
}

// NewTable returns an empty attribute table.
func NewTable() *Table {
	return &Table{byName: make(map[string]Id)}
}

// Declare registers a new attribute cell under name and returns its Id. The
// name is typically "<subsystem>.<component>.<field>". Declaring the same
// name twice is a programmer error and panics, mirroring the registry's
// panic-on-duplicate-registration convention used elsewhere in this module.
func (t *Table) Declare(name string) Id {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[name]; exists {
		panic(fmt.Sprintf("attribute: %q already declared", name))
	}
	id := Id(len(t.cells))
	t.cells = append(t.cells, cell{name: name})
	t.byName[name] = id
	return id
}

// Lookup resolves a previously declared attribute name to its Id.
func (t *Table) Lookup(name string) (Id, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the qualified name an Id was declared under.
func (t *Table) Name(id Id) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cells[id].name
}

// Get returns the current value stored at id.
func (t *Table) Get(id Id) any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cells[id].value
}

// Set stores a new value at id. Callers are responsible for only writing an
// attribute from the single task the schedule designates as its writer.
func (t *Table) Set(id Id, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cells[id].value = value
}

// Len returns the number of declared attributes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cells)
}
