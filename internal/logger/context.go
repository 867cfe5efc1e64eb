package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// Context holds connection-scoped logging fields. NodeID is -1 when the
// record does not belong to a storage node.
type Context struct {
	ClientIP   string
	ClientPort int
	User       string
	NodeID     int
	Command    string
	StartTime  time.Time
}

// WithContext returns a new context carrying the given Context.
func WithContext(ctx context.Context, lc *Context) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// ContextFrom retrieves the Context, or nil if not present.
func ContextFrom(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*Context)
	return lc
}

// NewContext creates a Context for a freshly accepted connection.
func NewContext(clientIP string, clientPort int) *Context {
	return &Context{
		ClientIP:   clientIP,
		ClientPort: clientPort,
		NodeID:     -1,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the Context.
func (lc *Context) Clone() *Context {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithUser returns a copy with the user set.
func (lc *Context) WithUser(user string) *Context {
	clone := lc.Clone()
	if clone != nil {
		clone.User = user
	}
	return clone
}

// WithCommand returns a copy with the command verb set.
func (lc *Context) WithCommand(verb string) *Context {
	clone := lc.Clone()
	if clone != nil {
		clone.Command = verb
	}
	return clone
}

// WithNodeID returns a copy with the storage-node id set.
func (lc *Context) WithNodeID(id int) *Context {
	clone := lc.Clone()
	if clone != nil {
		clone.NodeID = id
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *Context) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
