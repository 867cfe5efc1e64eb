package wire

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// Conn wraps a net.Conn with line framing and per-operation deadlines.
// It is not safe for concurrent use; each connection belongs to exactly one
// handler goroutine.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader

	// pending holds a frame prefix read before an error, typically a
	// deadline expiring mid-line. The next ReadLine continues the frame.
	pending string

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps raw. A zero timeout disables deadlines (tests over net.Pipe
// manage their own).
func NewConn(raw net.Conn, timeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		r:            bufio.NewReader(raw),
		readTimeout:  timeout,
		writeTimeout: timeout,
	}
}

// ReadLine reads one frame, stripping the newline. A read error mid-frame
// keeps the bytes already received, so a timeout-and-retry loop never tears
// a frame apart.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		if err := c.raw.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return "", err
		}
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.pending += line
		return "", err
	}
	line, c.pending = c.pending+line, ""
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadMessage reads and parses one frame.
func (c *Conn) ReadMessage() (Message, error) {
	line, err := c.ReadLine()
	if err != nil {
		return Message{}, err
	}
	return Parse(line), nil
}

// WriteLine writes one frame, appending the newline.
func (c *Conn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.raw.Write([]byte(line + "\n"))
	return err
}

// WriteSuccess writes `SUCCESS|<text>`.
func (c *Conn) WriteSuccess(format string, args ...any) error {
	return c.WriteLine(PrefixSuccess + Delimiter + fmt.Sprintf(format, args...))
}

// WriteError writes `ERROR|<text>`.
func (c *Conn) WriteError(format string, args ...any) error {
	return c.WriteLine(PrefixError + Delimiter + fmt.Sprintf(format, args...))
}

// WriteRedirect writes `REDIRECT|ip|port`.
func (c *Conn) WriteRedirect(ip string, port int) error {
	return c.WriteLine(Join(PrefixRedirect, ip, fmt.Sprintf("%d", port)))
}

// WriteWord writes `WORD|<word>`.
func (c *Conn) WriteWord(word string) error {
	return c.WriteLine(PrefixWord + Delimiter + word)
}

// WriteStop writes the `STOP` terminator frame.
func (c *Conn) WriteStop() error {
	return c.WriteLine(PrefixStop)
}

// WriteInfo writes `INFO|<text>`.
func (c *Conn) WriteInfo(format string, args ...any) error {
	return c.WriteLine(PrefixInfo + Delimiter + fmt.Sprintf(format, args...))
}

// SetTimeout replaces the deadline applied to each read and write.
func (c *Conn) SetTimeout(d time.Duration) {
	c.readTimeout = d
	c.writeTimeout = d
}

// SetReadTimeout replaces only the read deadline. Zero disables it: reads
// block until the peer speaks, while writes keep their own deadline. Session
// loops waiting for the next command use this so an idle peer is never cut
// off.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
	if d <= 0 {
		_ = c.raw.SetReadDeadline(time.Time{})
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// Dial opens a framed connection to addr with the standard client timeout on
// the dial itself and on subsequent operations.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewConn(raw, timeout), nil
}
