// Package directory maps filenames to the storage node that owns them.
package directory

import (
	"sort"
	"sync"
)

// Table is the routing table consulted on every redirect. Entries appear on
// CREATE or node registration and vanish on DELETE or node failure.
type Table struct {
	mu    sync.RWMutex
	files map[string]int
}

func NewTable() *Table {
	return &Table{files: make(map[string]int)}
}

// Put routes name to node, replacing any previous entry.
func (t *Table) Put(name string, node int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[name] = node
}

// Lookup returns the node owning name.
func (t *Table) Lookup(name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.files[name]
	return node, ok
}

// Remove drops the entry for name, if any.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, name)
}

// DropNode removes every entry routed to node and returns how many were
// dropped. Called when a storage node fails its liveness check.
func (t *Table) DropNode(node int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for name, owner := range t.files {
		if owner == node {
			delete(t.files, name)
			n++
		}
	}
	return n
}

// Files returns all routed filenames, sorted.
func (t *Table) Files() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of routed files.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}
