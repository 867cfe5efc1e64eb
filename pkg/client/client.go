// Package client is the Go API spoken by lexfsctl: a name-node session plus
// the redirect dance to storage nodes for content operations. All methods are
// synchronous and belong to a single goroutine, mirroring the one
// command / one reply shape of the protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lexfs/lexfs/internal/wire"
)

// Client is an authenticated session against the name node.
type Client struct {
	conn     *wire.Conn
	username string
	timeout  time.Duration

	// dialStorage opens redirected connections; overridable in tests.
	dialStorage func(addr string) (*wire.Conn, error)

	// Welcome is the greeting returned by the INIT handshake.
	Welcome string
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-operation network timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithStorageDialer replaces how redirected storage connections are opened.
func WithStorageDialer(dial func(addr string) (*wire.Conn, error)) Option {
	return func(c *Client) { c.dialStorage = dial }
}

// Dial connects to the name node at addr and performs the INIT handshake.
func Dial(addr, username string, opts ...Option) (*Client, error) {
	c := newClient(username, opts...)

	conn, err := wire.Dial(addr, c.timeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Connect performs the INIT handshake over an existing connection. Used by
// tests running over net.Pipe.
func Connect(conn *wire.Conn, username string, opts ...Option) (*Client, error) {
	c := newClient(username, opts...)
	c.conn = conn

	if err := c.handshake(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(username string, opts ...Option) *Client {
	c := &Client{
		username: username,
		timeout:  wire.ClientTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialStorage == nil {
		c.dialStorage = func(addr string) (*wire.Conn, error) {
			return wire.Dial(addr, c.timeout)
		}
	}
	return c
}

func (c *Client) handshake() error {
	if !wire.ValidUsername(c.username) {
		return fmt.Errorf("invalid username %q", c.username)
	}
	reply, err := c.roundTrip(wire.Join(wire.VerbInit, c.username))
	if err != nil {
		return err
	}
	c.Welcome = reply
	return nil
}

// Username returns the session identity.
func (c *Client) Username() string {
	return c.username
}

// Close ends the session politely; the reply to QUIT is discarded.
func (c *Client) Close() error {
	_ = c.conn.WriteLine(wire.VerbQuit)
	_, _ = c.conn.ReadLine()
	return c.conn.Close()
}

// roundTrip sends one frame and decodes the single-line reply, turning an
// ERROR frame into a Go error and stripping the SUCCESS prefix otherwise.
func (c *Client) roundTrip(frame string) (string, error) {
	if err := c.conn.WriteLine(frame); err != nil {
		return "", err
	}
	line, err := c.conn.ReadLine()
	if err != nil {
		return "", err
	}
	if !wire.IsPositive(line) {
		return "", errors.New(wire.ErrorText(line))
	}
	_, text, _ := strings.Cut(line, wire.Delimiter)
	return text, nil
}

// fetchBlock sends one frame and collects the lines between the leading
// SUCCESS| and the STOP terminator.
func (c *Client) fetchBlock(frame string) ([]string, error) {
	if err := c.conn.WriteLine(frame); err != nil {
		return nil, err
	}
	first, err := c.conn.ReadLine()
	if err != nil {
		return nil, err
	}
	if !wire.IsPositive(first) {
		return nil, errors.New(wire.ErrorText(first))
	}

	var lines []string
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == wire.PrefixStop {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// redirect sends a content-operation frame to the name node and follows the
// REDIRECT|ip|port answer to a fresh storage-node connection. The caller owns
// the returned connection.
func (c *Client) redirect(frame string) (*wire.Conn, error) {
	if err := c.conn.WriteLine(frame); err != nil {
		return nil, err
	}
	line, err := c.conn.ReadLine()
	if err != nil {
		return nil, err
	}

	msg := wire.Parse(line)
	if msg.Verb != wire.PrefixRedirect {
		return nil, errors.New(wire.ErrorText(line))
	}
	return c.dialStorage(net.JoinHostPort(msg.Field(0), msg.Field(1)))
}

// Create registers a new empty file owned by this session's user.
func (c *Client) Create(name string) (string, error) {
	return c.roundTrip(wire.Join(wire.VerbCreate, name))
}

// Delete removes a file; only its owner may do this.
func (c *Client) Delete(name string) (string, error) {
	return c.roundTrip(wire.Join(wire.VerbDelete, name))
}

// Grant gives user read (write=false) or write (write=true) access.
func (c *Client) Grant(name, user string, write bool) (string, error) {
	flag := wire.FlagRead
	if write {
		flag = wire.FlagWrite
	}
	return c.roundTrip(wire.Join(wire.VerbAddAccess, flag, name, user))
}

// Revoke removes user's access to a file.
func (c *Client) Revoke(name, user string) (string, error) {
	return c.roundTrip(wire.Join(wire.VerbRemAccess, name, user))
}

// View lists the filenames this user can read; all=true lists everything.
func (c *Client) View(all bool) ([]string, error) {
	frame := wire.VerbView
	if all {
		frame = wire.Join(wire.VerbView, wire.FlagAll)
	}
	lines, err := c.fetchBlock(frame)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		names = append(names, strings.TrimPrefix(line, "--> "))
	}
	return names, nil
}

// ListUsers returns the currently connected usernames.
func (c *Client) ListUsers() ([]string, error) {
	lines, err := c.fetchBlock(wire.VerbList)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(lines))
	for _, line := range lines {
		if !strings.HasPrefix(line, "--> ") {
			continue
		}
		users = append(users, strings.TrimPrefix(line, "--> "))
	}
	return users, nil
}

// Info returns the metadata block of a file, access section included.
func (c *Client) Info(name string) ([]string, error) {
	return c.fetchBlock(wire.Join(wire.VerbInfo, name))
}

// Exec fetches the raw file content via the name node.
func (c *Client) Exec(name string) (string, error) {
	lines, err := c.fetchBlock(wire.Join(wire.VerbExec, name))
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Read fetches the numbered sentence listing from the file's storage node.
func (c *Client) Read(name string) ([]string, error) {
	conn, err := c.redirect(wire.Join(wire.VerbRead, name))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.WriteLine(wire.Join(wire.VerbRead, name)); err != nil {
		return nil, err
	}
	first, err := conn.ReadLine()
	if err != nil {
		return nil, err
	}
	if !wire.IsPositive(first) {
		return nil, errors.New(wire.ErrorText(first))
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

// Undo rolls a file back to its pre-write image on the storage node.
func (c *Client) Undo(name string) (string, error) {
	conn, err := c.redirect(wire.Join(wire.VerbUndo, name))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.WriteLine(wire.Join(wire.VerbUndo, name)); err != nil {
		return "", err
	}
	line, err := conn.ReadLine()
	if err != nil {
		return "", err
	}
	if !wire.IsPositive(line) {
		return "", errors.New(wire.ErrorText(line))
	}
	_, text, _ := strings.Cut(line, wire.Delimiter)
	return text, nil
}

// Stream plays the file word by word, invoking fn for each WORD frame as it
// arrives. A non-nil error from fn stops the stream early.
func (c *Client) Stream(ctx context.Context, name string, fn func(word string) error) error {
	conn, err := c.redirect(wire.Join(wire.VerbStream, name))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteLine(wire.Join(wire.VerbStream, name)); err != nil {
		return err
	}
	first, err := conn.ReadLine()
	if err != nil {
		return err
	}
	if !wire.IsPositive(first) {
		return errors.New(wire.ErrorText(first))
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if line == wire.PrefixStop {
			return nil
		}
		msg := wire.Parse(line)
		if msg.Verb != wire.PrefixWord {
			continue
		}
		if err := fn(msg.Field(0)); err != nil {
			return err
		}
	}
}
