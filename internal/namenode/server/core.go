// Package server implements the name node's two listeners: the client
// session loop and the storage-node control listener, plus the liveness
// monitor that expels silent storage nodes.
package server

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/metrics"
	"github.com/lexfs/lexfs/internal/namenode/acl"
	"github.com/lexfs/lexfs/internal/namenode/directory"
	"github.com/lexfs/lexfs/internal/namenode/membership"
	"github.com/lexfs/lexfs/internal/namenode/sessions"
	"github.com/lexfs/lexfs/internal/wire"
)

// Core bundles the name node's shared state. One Core backs both listeners
// and the monitor.
type Core struct {
	Directory *directory.Table
	Members   *membership.Registry
	ACL       *acl.List
	Sessions  *sessions.Registry
	Metrics   *metrics.NameNodeMetrics
	Log       *slog.Logger

	// ACLCachePath, when set, receives the ACL table after every mutation
	// and is replayed on start.
	ACLCachePath string

	// Dial opens a framed connection to a storage node. Overridable in
	// tests; nil means TCP with the standard client timeout.
	Dial func(addr string) (*wire.Conn, error)
}

func NewCore(log *slog.Logger) *Core {
	return &Core{
		Directory: directory.NewTable(),
		Members:   membership.NewRegistry(),
		ACL:       acl.NewList(),
		Sessions:  sessions.NewRegistry(),
		Log:       log,
	}
}

func (c *Core) dialNode(n membership.Node) (*wire.Conn, error) {
	addr := fmt.Sprintf("%s:%d", n.IP, n.ClientPort)
	if c.Dial != nil {
		return c.Dial(addr)
	}
	return wire.Dial(addr, wire.ClientTimeout)
}

// saveACL persists the ACL cache; failures are logged, never surfaced to the
// client whose mutation already took effect in memory.
func (c *Core) saveACL() {
	if c.ACLCachePath == "" {
		return
	}
	if err := c.ACL.Save(c.ACLCachePath); err != nil {
		c.Log.Error("acl cache write failed", logger.Err(err))
	}
}

// LoadACL replays the cache file on start.
func (c *Core) LoadACL() error {
	if c.ACLCachePath == "" {
		return nil
	}
	return c.ACL.Load(c.ACLCachePath)
}

// failNode expels a storage node: membership entry and every routing entry
// pointing at it.
func (c *Core) failNode(id int) {
	c.Members.Remove(id)
	dropped := c.Directory.DropNode(id)
	c.Metrics.SetLiveNodes(c.Members.Count())
	c.Log.Warn("storage node dropped",
		logger.NodeID(id),
		logger.Entries(dropped))
}

// forward sends one frame to a storage node and returns the first reply
// line.
func (c *Core) forward(n membership.Node, frame string) (string, error) {
	conn, err := c.dialNode(n)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.WriteLine(frame); err != nil {
		return "", err
	}
	return conn.ReadLine()
}

// fetchBlock sends a frame and collects the reply lines after the leading
// SUCCESS| until the STOP terminator.
func (c *Core) fetchBlock(n membership.Node, frame string) ([]string, error) {
	conn, err := c.dialNode(n)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.WriteLine(frame); err != nil {
		return nil, err
	}

	first, err := conn.ReadLine()
	if err != nil {
		return nil, err
	}
	if !wire.IsPositive(first) {
		return nil, fmt.Errorf("%s", wire.ErrorText(first))
	}

	var lines []string
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == wire.PrefixStop {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// fetchContent performs a CLEANREAD against a storage node. The reply has no
// terminator frame; the storage node closes the connection after the content.
func (c *Core) fetchContent(n membership.Node, name string) (string, error) {
	conn, err := c.dialNode(n)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.WriteLine(wire.VerbCleanRead + wire.Delimiter + name); err != nil {
		return "", err
	}

	first, err := conn.ReadLine()
	if err != nil {
		return "", err
	}
	if !wire.IsPositive(first) {
		return "", fmt.Errorf("%s", wire.ErrorText(first))
	}

	var lines []string
	for {
		line, err := conn.ReadLine()
		if err != nil {
			// EOF marks the end of content.
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
