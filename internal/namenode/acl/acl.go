// Package acl implements per-file access control on the name node. Levels
// are ordered: an owner may do anything a writer may, a writer anything a
// reader may.
package acl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	None Level = iota
	Read
	Write
	Owner
)

func (l Level) String() string {
	switch l {
	case Read:
		return "read"
	case Write:
		return "write"
	case Owner:
		return "owner"
	default:
		return "none"
	}
}

var (
	ErrNotFound     = errors.New("file has no ACL")
	ErrOwnerExists  = errors.New("file already has a different owner")
	ErrOwnerChange  = errors.New("cannot change the owner entry")
	ErrInvalidLevel = errors.New("invalid access level")
)

type entry struct {
	owner  string
	grants map[string]Level
}

// List is the ACL table. The owner is implicit in every check and never
// appears among the grants.
type List struct {
	mu    sync.RWMutex
	files map[string]*entry
}

func NewList() *List {
	return &List{files: make(map[string]*entry)}
}

// Add creates the ACL for a new file. Re-adding with the same owner is a
// no-op; with a different owner it fails.
func (l *List) Add(file, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.files[file]; ok {
		if e.owner != owner {
			return ErrOwnerExists
		}
		return nil
	}
	l.files[file] = &entry{owner: owner, grants: make(map[string]Level)}
	return nil
}

// Grant upserts user's level on file. The owner entry is immutable and a
// grant can only confer read or write.
func (l *List) Grant(file, user string, level Level) error {
	if level != Read && level != Write {
		return ErrInvalidLevel
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.files[file]
	if !ok {
		return ErrNotFound
	}
	if user == e.owner {
		return ErrOwnerChange
	}
	e.grants[user] = level
	return nil
}

// Revoke removes user's grant on file. The owner cannot be revoked.
func (l *List) Revoke(file, user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.files[file]
	if !ok {
		return ErrNotFound
	}
	if user == e.owner {
		return ErrOwnerChange
	}
	delete(e.grants, user)
	return nil
}

// Check reports whether user holds at least required on file.
func (l *List) Check(file, user string, required Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.files[file]
	if !ok {
		return false
	}
	if user == e.owner {
		return true
	}
	return e.grants[user] >= required
}

// Owner returns the owning user of file.
func (l *List) Owner(file string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.files[file]
	if !ok {
		return "", false
	}
	return e.owner, true
}

// Remove drops the whole ACL of file. Called on DELETE.
func (l *List) Remove(file string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.files, file)
}

// Grants returns the non-owner grants of file, sorted by user.
func (l *List) Grants(file string) []Grant {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.files[file]
	if !ok {
		return nil
	}
	out := make([]Grant, 0, len(e.grants))
	for user, level := range e.grants {
		out = append(out, Grant{User: user, Level: level})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// Grant pairs a user with the level they hold.
type Grant struct {
	User  string
	Level Level
}

// AccessBlock renders the human-readable ACCESS section appended to INFO
// responses.
func (l *List) AccessBlock(file string) string {
	owner, ok := l.Owner(file)
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString("ACCESS\n")
	fmt.Fprintf(&b, "Owner: %s\n", owner)

	var readers, writers []string
	for _, g := range l.Grants(file) {
		switch g.Level {
		case Read:
			readers = append(readers, g.User)
		case Write:
			writers = append(writers, g.User)
		}
	}
	fmt.Fprintf(&b, "Readers: %s\n", joinOrDash(readers))
	fmt.Fprintf(&b, "Writers: %s", joinOrDash(writers))
	return b.String()
}

func joinOrDash(users []string) string {
	if len(users) == 0 {
		return "-"
	}
	return strings.Join(users, ", ")
}
