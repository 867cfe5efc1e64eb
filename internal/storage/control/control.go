// Package control maintains the storage node's long-lived channel to the
// name node: registration, heartbeat echo, and file-event notifications.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lexfs/lexfs/internal/logger"
	"github.com/lexfs/lexfs/internal/wire"
)

// Client owns one control connection. Reads happen only in Run; writes are
// serialised by a mutex so session handlers can push notifications
// concurrently with the heartbeat loop.
type Client struct {
	conn *wire.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	nodeID  int
}

// Registration carries the identity a storage node announces.
type Registration struct {
	// IP is the address clients and the name node should reach this node on.
	IP string
	// ControlPort is the port of this node's name-node-facing listener.
	ControlPort int
	// ClientPort is the port clients are redirected to.
	ClientPort int
	// Files lists the documents already present locally, re-announced so the
	// routing table survives a node restart.
	Files []string
}

// Dial connects to the name node and performs the REGISTER handshake.
func Dial(ctx context.Context, addr string, reg Registration, log *slog.Logger) (*Client, error) {
	conn, err := wire.Dial(addr, wire.ClientTimeout)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, log: log, nodeID: -1}
	if err := c.register(reg); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("registered with name node",
		logger.NodeID(c.nodeID),
		logger.Address(addr),
		logger.Entries(len(reg.Files)))
	return c, nil
}

// NewClient wraps an established connection without dialing; the caller still
// has to Register. Used by tests.
func NewClient(conn *wire.Conn, log *slog.Logger) *Client {
	return &Client{conn: conn, log: log, nodeID: -1}
}

// Register announces this node and parses the assigned identifier.
func (c *Client) Register(reg Registration) error {
	return c.register(reg)
}

func (c *Client) register(reg Registration) error {
	frame := wire.Join(
		wire.VerbRegister,
		reg.IP,
		strconv.Itoa(reg.ControlPort),
		strconv.Itoa(reg.ClientPort),
		strings.Join(reg.Files, ","),
	)
	if err := c.conn.WriteLine(frame); err != nil {
		return fmt.Errorf("send register: %w", err)
	}

	line, err := c.conn.ReadLine()
	if err != nil {
		return fmt.Errorf("read register reply: %w", err)
	}
	if wire.IsError(line) {
		return fmt.Errorf("registration refused: %s", wire.ErrorText(line))
	}

	rest, ok := strings.CutPrefix(line, wire.PrefixSuccess+wire.Delimiter+"SS_ID=")
	if !ok {
		return fmt.Errorf("unexpected register reply: %q", line)
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return fmt.Errorf("bad node id in register reply %q: %w", line, err)
	}
	c.nodeID = id
	return nil
}

// NodeID returns the identifier assigned at registration, -1 before.
func (c *Client) NodeID() int {
	return c.nodeID
}

// Run answers heartbeat probes until the connection drops or ctx is
// cancelled. It always returns a non-nil error; the caller decides whether
// to re-dial.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	// Heartbeats arrive on a five-second cadence at most; anything beyond
	// the grace window means the name node is gone.
	c.conn.SetTimeout(wire.HeartbeatGrace + wire.ControlTimeout)

	for {
		msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("control channel lost: %w", err)
		}

		switch msg.Verb {
		case wire.VerbHeartbeat:
			if err := c.send(wire.VerbHeartbeatAck); err != nil {
				return fmt.Errorf("heartbeat ack: %w", err)
			}
		case "":
			// keepalive noise
		default:
			c.log.Debug("unexpected control frame", slog.String(logger.KeyVerb, msg.Verb))
		}
	}
}

func (c *Client) send(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteLine(line)
}

func (c *Client) notify(verb, name string) {
	if err := c.send(verb + wire.Delimiter + name); err != nil {
		c.log.Warn("notification dropped",
			slog.String(logger.KeyVerb, verb),
			logger.Filename(name),
			logger.Err(err))
	}
}

// FileCreated implements the storage server's Notifier.
func (c *Client) FileCreated(name string) { c.notify(wire.VerbFileCreated, name) }

// FileUpdated implements the storage server's Notifier.
func (c *Client) FileUpdated(name string) { c.notify(wire.VerbFileUpdated, name) }

// FileDeleted implements the storage server's Notifier.
func (c *Client) FileDeleted(name string) { c.notify(wire.VerbFileDeleted, name) }

// Close tears the channel down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RunWithRetry keeps the control channel alive, re-dialing with a fixed
// backoff whenever it drops. Registration is repeated so the name node
// relearns this node's files after a failure window.
func RunWithRetry(ctx context.Context, addr string, reg func() Registration, backoff time.Duration, log *slog.Logger, onConnect func(*Client)) {
	for {
		if ctx.Err() != nil {
			return
		}

		c, err := Dial(ctx, addr, reg(), log)
		if err != nil {
			log.Warn("name node unreachable", logger.Address(addr), logger.Err(err))
		} else {
			if onConnect != nil {
				onConnect(c)
			}
			err = c.Run(ctx)
			c.Close()
			if ctx.Err() != nil {
				return
			}
			log.Warn("control channel closed", logger.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
