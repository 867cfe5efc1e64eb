package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lexfs/lexfs/internal/wire"
)

// WriteSession is an open sentence edit on a storage node. The target
// sentence stays locked until Commit or Abort; words queue against an
// in-memory copy that is only persisted by Commit.
type WriteSession struct {
	conn *wire.Conn

	// Sentence is the index currently being edited. It advances when an
	// update containing a sentence terminator splits the sentence.
	Sentence int

	// Prompt is the server's opening line, e.g. "Sentence 0 locked for ...".
	Prompt string

	done bool
}

// Write opens a write session on sentence idx of the named file. The
// sentence is locked across all sessions until the returned session is
// committed or aborted.
func (c *Client) Write(name string, idx int) (*WriteSession, error) {
	conn, err := c.redirect(wire.Join(wire.VerbWrite, name, strconv.Itoa(idx)))
	if err != nil {
		return nil, err
	}

	frame := wire.Join(wire.VerbWrite, name, strconv.Itoa(idx), c.username)
	if err := conn.WriteLine(frame); err != nil {
		conn.Close()
		return nil, err
	}
	line, err := conn.ReadLine()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !wire.IsPositive(line) {
		conn.Close()
		return nil, errors.New(wire.ErrorText(line))
	}
	_, prompt, _ := strings.Cut(line, wire.Delimiter)

	return &WriteSession{
		conn:     conn,
		Sentence: idx,
		Prompt:   prompt,
	}, nil
}

// Put inserts content before word index wordIdx of the current sentence.
// When the content carries a sentence terminator the edit continues in the
// following sentence; the returned note is the server's notice about that
// ("" otherwise).
func (w *WriteSession) Put(wordIdx int, content string) (string, error) {
	if w.done {
		return "", errors.New("write session already closed")
	}
	if content == "" {
		return "", errors.New("empty content")
	}

	frame := strconv.Itoa(wordIdx) + wire.Delimiter + content
	if err := w.conn.WriteLine(frame); err != nil {
		return "", err
	}
	reply, err := w.conn.ReadLine()
	if err != nil {
		return "", err
	}
	if !wire.IsPositive(reply) {
		return "", errors.New(wire.ErrorText(reply))
	}

	// A terminator in the content always ends the current sentence, so the
	// server follows the acknowledgement with an INFO frame naming the next
	// edit position.
	if !strings.ContainsAny(content, ".!?") {
		return "", nil
	}
	note, err := w.conn.ReadLine()
	if err != nil {
		return "", err
	}
	msg := wire.Parse(note)
	if msg.Verb != wire.PrefixInfo {
		return "", fmt.Errorf("unexpected frame %q", note)
	}
	if n, convErr := parseTrailingInt(msg.Field(0)); convErr == nil {
		w.Sentence = n
	}
	return msg.Field(0), nil
}

// Commit persists the queued edits and releases the sentence lock.
func (w *WriteSession) Commit() (string, error) {
	if w.done {
		return "", errors.New("write session already closed")
	}
	w.done = true
	defer w.conn.Close()

	if err := w.conn.WriteLine(wire.VerbCommit); err != nil {
		return "", err
	}
	reply, err := w.conn.ReadLine()
	if err != nil {
		return "", err
	}
	if !wire.IsPositive(reply) {
		return "", errors.New(wire.ErrorText(reply))
	}
	_, text, _ := strings.Cut(reply, wire.Delimiter)
	return text, nil
}

// Abort drops the connection without committing; queued edits are discarded
// and the lock is released by the storage node on disconnect.
func (w *WriteSession) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.conn.Close()
}

// parseTrailingInt extracts the integer ending a sentence like
// "Sentence ended. Now editing sentence 3".
func parseTrailingInt(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, errors.New("no fields")
	}
	return strconv.Atoi(fields[len(fields)-1])
}
