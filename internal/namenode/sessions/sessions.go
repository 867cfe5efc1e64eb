// Package sessions tracks the connected client users. Usernames are unique
// cluster-wide: a second INIT under a connected name is refused.
package sessions

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lexfs/lexfs/internal/wire"
)

var (
	ErrDuplicate = errors.New("user already connected")
	ErrFull      = errors.New("too many users")
	ErrBadName   = errors.New("invalid username")
)

// Registry holds the active sessions.
type Registry struct {
	mu    sync.Mutex
	users map[string]time.Time

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Add admits user, enforcing name validity, uniqueness, and capacity.
func (r *Registry) Add(user string) error {
	if !wire.ValidUsername(user) {
		return ErrBadName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user]; ok {
		return ErrDuplicate
	}
	if len(r.users) >= wire.MaxUsers {
		return ErrFull
	}
	r.users[user] = r.now()
	return nil
}

// Remove ends user's session. Unknown users are ignored.
func (r *Registry) Remove(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, user)
}

// Connected reports whether user has an active session.
func (r *Registry) Connected(user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[user]
	return ok
}

// List returns the connected usernames, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
