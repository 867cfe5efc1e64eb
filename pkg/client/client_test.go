package client

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfs/lexfs/internal/wire"
)

// dialScripted connects a Client to a scripted name-node peer. The script
// runs after the INIT handshake has been answered.
func dialScripted(t *testing.T, username string, script func(s *wire.Conn), opts ...Option) *Client {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
	})

	go func() {
		s := wire.NewConn(serverSide, 0)
		msg, err := s.ReadMessage()
		if err != nil {
			return
		}
		if msg.Verb != wire.VerbInit {
			_ = s.WriteError("First message must be INIT|username")
			return
		}
		_ = s.WriteSuccess("Welcome %s! Connected to LexFS name node.", msg.Field(0))
		if script != nil {
			script(s)
		}
	}()

	c, err := Connect(wire.NewConn(clientSide, 0), username, opts...)
	require.NoError(t, err)
	return c
}

// scriptedStorage returns a storage dialer whose connections are served by
// script, plus cleanup via t.Cleanup.
func scriptedStorage(t *testing.T, script func(s *wire.Conn)) Option {
	t.Helper()

	return WithStorageDialer(func(addr string) (*wire.Conn, error) {
		clientSide, serverSide := net.Pipe()
		t.Cleanup(func() {
			clientSide.Close()
			serverSide.Close()
		})
		go script(wire.NewConn(serverSide, 0))
		return wire.NewConn(clientSide, 0), nil
	})
}

func TestConnectHandshake(t *testing.T) {
	c := dialScripted(t, "alice", nil)
	assert.Equal(t, "Welcome alice! Connected to LexFS name node.", c.Welcome)
	assert.Equal(t, "alice", c.Username())
}

func TestConnectRejectsBadUsername(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	_, err := Connect(wire.NewConn(clientSide, 0), "no spaces")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username")
}

func TestCreateSuccessAndError(t *testing.T) {
	c := dialScripted(t, "alice", func(s *wire.Conn) {
		line, _ := s.ReadLine()
		if line == "CREATE|notes.txt" {
			_ = s.WriteSuccess("File created successfully!")
		}
		line, _ = s.ReadLine()
		if line == "CREATE|notes.txt" {
			_ = s.WriteError("File already exists")
		}
	})

	msg, err := c.Create("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "File created successfully!", msg)

	_, err = c.Create("notes.txt")
	require.Error(t, err)
	assert.Equal(t, "File already exists", err.Error())
}

func TestViewStripsPrefix(t *testing.T) {
	c := dialScripted(t, "alice", func(s *wire.Conn) {
		line, _ := s.ReadLine()
		if line != "VIEW|-a" {
			_ = s.WriteError("unexpected frame")
			return
		}
		_ = s.WriteLine("SUCCESS|")
		_ = s.WriteLine("--> a.txt")
		_ = s.WriteLine("--> b.txt")
		_ = s.WriteStop()
	})

	names, err := c.View(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestListUsersFiltersPlaceholder(t *testing.T) {
	c := dialScripted(t, "alice", func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteSuccess("Users:")
		_ = s.WriteLine("(No users connected)")
		_ = s.WriteStop()
	})

	users, err := c.ListUsers()
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestReadFollowsRedirect(t *testing.T) {
	storage := scriptedStorage(t, func(s *wire.Conn) {
		line, _ := s.ReadLine()
		if line != "READ|notes.txt" {
			_ = s.WriteError("unexpected frame")
			return
		}
		_ = s.WriteLine("SUCCESS|")
		_ = s.WriteLine("[0] hello world.")
		_ = s.WriteLine("[1] second line")
		_ = s.WriteStop()
	})

	c := dialScripted(t, "alice", func(s *wire.Conn) {
		line, _ := s.ReadLine()
		if line != "READ|notes.txt" {
			_ = s.WriteError("unexpected frame")
			return
		}
		_ = s.WriteRedirect("10.0.0.5", 9101)
	}, storage)

	lines, err := c.Read("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"[0] hello world.", "[1] second line"}, lines)
}

func TestReadAccessDenied(t *testing.T) {
	c := dialScripted(t, "mallory", func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteError("Access denied")
	})

	_, err := c.Read("notes.txt")
	require.Error(t, err)
	assert.Equal(t, "Access denied", err.Error())
}

func TestStreamDeliversWords(t *testing.T) {
	storage := scriptedStorage(t, func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteSuccess("Starting stream")
		_ = s.WriteWord("hello")
		_ = s.WriteWord("world.")
		_ = s.WriteStop()
	})

	c := dialScripted(t, "alice", func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteRedirect("10.0.0.5", 9101)
	}, storage)

	var words []string
	err := c.Stream(context.Background(), "notes.txt", func(w string) error {
		words = append(words, w)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world."}, words)
}

func TestWriteSessionLifecycle(t *testing.T) {
	storage := scriptedStorage(t, func(s *wire.Conn) {
		line, _ := s.ReadLine()
		if line != "WRITE|notes.txt|0|alice" {
			_ = s.WriteError("unexpected frame")
			return
		}
		_ = s.WriteSuccess("Sentence 0 locked for 'alice'. Send word updates (word_index|content), then ETIRW")

		line, _ = s.ReadLine() // 0|hello
		_ = s.WriteSuccess("Word updated")
		_ = line

		line, _ = s.ReadLine() // 1|world.
		_ = s.WriteSuccess("Word updated")
		_ = s.WriteInfo("Sentence ended. Now editing sentence 1")
		_ = line

		line, _ = s.ReadLine()
		if line == wire.VerbCommit {
			_ = s.WriteSuccess("Write complete")
		}
	})

	c := dialScripted(t, "alice", func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteRedirect("10.0.0.5", 9101)
	}, storage)

	w, err := c.Write("notes.txt", 0)
	require.NoError(t, err)
	assert.Contains(t, w.Prompt, "Sentence 0 locked")

	note, err := w.Put(0, "hello")
	require.NoError(t, err)
	assert.Empty(t, note)
	assert.Equal(t, 0, w.Sentence)

	note, err = w.Put(1, "world.")
	require.NoError(t, err)
	assert.Contains(t, note, "Now editing sentence 1")
	assert.Equal(t, 1, w.Sentence)

	msg, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, "Write complete", msg)

	_, err = w.Commit()
	require.Error(t, err)
}

func TestWriteLockRefused(t *testing.T) {
	storage := scriptedStorage(t, func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteError("Sentence locked by another user")
	})

	c := dialScripted(t, "bob", func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteRedirect("10.0.0.5", 9101)
	}, storage)

	_, err := c.Write("notes.txt", 0)
	require.Error(t, err)
	assert.Equal(t, "Sentence locked by another user", err.Error())
}

func TestUndoFollowsRedirect(t *testing.T) {
	storage := scriptedStorage(t, func(s *wire.Conn) {
		line, _ := s.ReadLine()
		if line != "UNDO|notes.txt" {
			_ = s.WriteError("unexpected frame")
			return
		}
		_ = s.WriteSuccess("Undo successful")
	})

	c := dialScripted(t, "alice", func(s *wire.Conn) {
		_, _ = s.ReadLine()
		_ = s.WriteRedirect("10.0.0.5", 9101)
	}, storage)

	msg, err := c.Undo("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Undo successful", msg)
}
