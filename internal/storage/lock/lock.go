// Package lock provides the per-sentence write locks a storage node holds on
// behalf of editing users. A lock is scoped to one sentence of one file and
// survives across frames of a write session; it is re-entrant for its holder
// and released either explicitly at commit or wholesale when the holder's
// session ends.
package lock

import (
	"errors"
	"fmt"
	"sync"
)

var ErrLockHeld = errors.New("sentence locked by another user")

type key struct {
	file     string
	sentence int
}

// Table tracks which user holds the write lock on each (file, sentence) pair.
// Safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	locks map[key]string
}

func NewTable() *Table {
	return &Table{locks: make(map[key]string)}
}

// TryLock acquires the lock on sentence idx of file for user. Acquiring a
// lock already held by the same user succeeds. When another user holds it,
// ErrLockHeld is returned wrapped with the holder's name.
func (t *Table) TryLock(file string, idx int, user string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{file, idx}
	holder, ok := t.locks[k]
	if ok && holder != user {
		return fmt.Errorf("%w: held by %s", ErrLockHeld, holder)
	}
	t.locks[k] = user
	return nil
}

// Unlock releases the lock on sentence idx of file, but only when user holds
// it. Releasing an unheld lock is a no-op.
func (t *Table) Unlock(file string, idx int, user string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{file, idx}
	if t.locks[k] == user {
		delete(t.locks, k)
	}
}

// Holder returns the user holding sentence idx of file, or "" when unlocked.
func (t *Table) Holder(file string, idx int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locks[key{file, idx}]
}

// ReleaseUser drops every lock user holds, across all files. Called when the
// user's session ends, cleanly or not. Returns the number of locks released.
func (t *Table) ReleaseUser(user string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, holder := range t.locks {
		if holder == user {
			delete(t.locks, k)
			n++
		}
	}
	return n
}

// ReleaseFile drops every lock on file, for any holder. Called when the file
// is deleted.
func (t *Table) ReleaseFile(file string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.locks {
		if k.file == file {
			delete(t.locks, k)
		}
	}
}
