package control

import (
	"sync"
)

// Relay decouples client sessions from the control channel's lifecycle: it
// forwards file events to whichever Client is currently connected and drops
// them while the channel is down. The name node relearns local files from the
// REGISTER re-announcement on reconnect, so dropped events are not fatal.
type Relay struct {
	mu sync.RWMutex
	c  *Client
}

// Attach makes c the forwarding target. Called from RunWithRetry's onConnect.
func (r *Relay) Attach(c *Client) {
	r.mu.Lock()
	r.c = c
	r.mu.Unlock()
}

func (r *Relay) current() *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.c
}

// FileCreated implements the storage server's Notifier.
func (r *Relay) FileCreated(name string) {
	if c := r.current(); c != nil {
		c.FileCreated(name)
	}
}

// FileUpdated implements the storage server's Notifier.
func (r *Relay) FileUpdated(name string) {
	if c := r.current(); c != nil {
		c.FileUpdated(name)
	}
}

// FileDeleted implements the storage server's Notifier.
func (r *Relay) FileDeleted(name string) {
	if c := r.current(); c != nil {
		c.FileDeleted(name)
	}
}
