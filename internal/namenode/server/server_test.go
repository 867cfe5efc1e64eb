package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfs/lexfs/internal/namenode/acl"
	"github.com/lexfs/lexfs/internal/wire"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	c := NewCore(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(12)})))
	c.ACLCachePath = filepath.Join(t.TempDir(), "acl.cache")
	return c
}

// dialClient runs a client session over a pipe and returns the client end.
func dialClient(t *testing.T, core *Core) *wire.Conn {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	f := &ClientFactory{Core: core}
	sess := f.NewConnection(serverSide)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Serve(ctx)
	}()
	t.Cleanup(func() {
		clientSide.Close()
		cancel()
		<-done
	})

	return wire.NewConn(clientSide, 0)
}

// initAs performs the INIT handshake for user.
func initAs(t *testing.T, core *Core, user string) *wire.Conn {
	t.Helper()
	c := dialClient(t, core)
	require.NoError(t, c.WriteLine("INIT|"+user))
	line, err := c.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "SUCCESS|Welcome "+user+"! Connected to LexFS name node.", line)
	return c
}

// fakeStorageNode registers a node and installs a Dial that scripts its
// replies.
func fakeStorageNode(t *testing.T, core *Core, script func(*wire.Conn)) int {
	t.Helper()

	n, err := core.Members.Register("10.0.0.9", 9100, 9101)
	require.NoError(t, err)

	core.Dial = func(addr string) (*wire.Conn, error) {
		a, b := net.Pipe()
		go func() {
			conn := wire.NewConn(b, 0)
			defer conn.Close()
			script(conn)
		}()
		return wire.NewConn(a, 0), nil
	}
	return n.ID
}

func readLine(t *testing.T, c *wire.Conn) string {
	t.Helper()
	line, err := c.ReadLine()
	require.NoError(t, err)
	return line
}

func readUntilStop(t *testing.T, c *wire.Conn) []string {
	t.Helper()
	var lines []string
	for {
		line := readLine(t, c)
		if line == wire.PrefixStop {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestInitHandshake(t *testing.T) {
	core := newTestCore(t)

	alice := initAs(t, core, "alice")
	_ = alice

	// Duplicate username refused.
	dup := dialClient(t, core)
	require.NoError(t, dup.WriteLine("INIT|alice"))
	assert.Equal(t, "ERROR|User already connected", readLine(t, dup))

	// First frame must be INIT.
	bad := dialClient(t, core)
	require.NoError(t, bad.WriteLine("VIEW"))
	assert.Equal(t, "ERROR|First message must be INIT|username", readLine(t, bad))

	// Invalid username.
	inv := dialClient(t, core)
	require.NoError(t, inv.WriteLine("INIT|no spaces"))
	assert.Equal(t, "ERROR|Invalid username", readLine(t, inv))
}

// A client idle between commands must keep its session; the write deadline
// configured on the factory never applies to waiting for the next command.
func TestIdleClientSessionStaysConnected(t *testing.T) {
	core := newTestCore(t)

	clientSide, serverSide := net.Pipe()
	f := &ClientFactory{Core: core, Timeout: 50 * time.Millisecond}
	sess := f.NewConnection(serverSide)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Serve(ctx)
	}()
	t.Cleanup(func() {
		clientSide.Close()
		cancel()
		<-done
	})

	c := wire.NewConn(clientSide, 0)
	require.NoError(t, c.WriteLine("INIT|alice"))
	require.Equal(t, "SUCCESS|Welcome alice! Connected to LexFS name node.", readLine(t, c))

	// Idle well past the deadline with no command in flight.
	time.Sleep(200 * time.Millisecond)
	assert.True(t, core.Sessions.Connected("alice"))

	require.NoError(t, c.WriteLine("LIST"))
	assert.Equal(t, "SUCCESS|Users:", readLine(t, c))
	assert.Equal(t, []string{"--> alice"}, readUntilStop(t, c))
}

func TestQuitFreesUsername(t *testing.T) {
	core := newTestCore(t)

	c := initAs(t, core, "alice")
	require.NoError(t, c.WriteLine("QUIT"))
	assert.Equal(t, "SUCCESS|Goodbye!", readLine(t, c))

	require.Eventually(t, func() bool {
		return !core.Sessions.Connected("alice")
	}, time.Second, 10*time.Millisecond)

	c2 := initAs(t, core, "alice")
	_ = c2
}

func TestCreateFlow(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(ss *wire.Conn) {
		line, err := ss.ReadLine()
		if err != nil {
			return
		}
		assert.Equal(t, "CREATE|notes.txt|alice", line)
		_ = ss.WriteLine("SUCCESS|File 'notes.txt' created")
	})

	c := initAs(t, core, "alice")
	require.NoError(t, c.WriteLine("CREATE|notes.txt"))
	assert.Equal(t, "SUCCESS|File created successfully!", readLine(t, c))

	routed, ok := core.Directory.Lookup("notes.txt")
	assert.True(t, ok)
	assert.Equal(t, nodeID, routed)

	owner, _ := core.ACL.Owner("notes.txt")
	assert.Equal(t, "alice", owner)

	// Duplicate names are refused before any forwarding.
	require.NoError(t, c.WriteLine("CREATE|notes.txt"))
	assert.Equal(t, "ERROR|File already exists", readLine(t, c))
}

func TestCreateWithoutStorageNodes(t *testing.T) {
	core := newTestCore(t)
	c := initAs(t, core, "alice")

	require.NoError(t, c.WriteLine("CREATE|a.txt"))
	assert.Equal(t, "ERROR|No storage server available", readLine(t, c))

	require.NoError(t, c.WriteLine("CREATE|bad/name"))
	assert.Equal(t, "ERROR|Invalid filename", readLine(t, c))
}

func TestRedirectHonoursACL(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(*wire.Conn) {})

	core.Directory.Put("doc.txt", nodeID)
	require.NoError(t, core.ACL.Add("doc.txt", "alice"))
	require.NoError(t, core.ACL.Grant("doc.txt", "bob", acl.Read))

	alice := initAs(t, core, "alice")
	bob := initAs(t, core, "bob")
	carol := initAs(t, core, "carol")

	require.NoError(t, alice.WriteLine("READ|doc.txt"))
	assert.Equal(t, "REDIRECT|10.0.0.9|9101", readLine(t, alice))

	// A reader may READ and STREAM but not WRITE or UNDO.
	require.NoError(t, bob.WriteLine("STREAM|doc.txt"))
	assert.Equal(t, "REDIRECT|10.0.0.9|9101", readLine(t, bob))
	require.NoError(t, bob.WriteLine("WRITE|doc.txt"))
	assert.Equal(t, "ERROR|Access denied", readLine(t, bob))
	require.NoError(t, bob.WriteLine("UNDO|doc.txt"))
	assert.Equal(t, "ERROR|Access denied", readLine(t, bob))

	require.NoError(t, carol.WriteLine("READ|doc.txt"))
	assert.Equal(t, "ERROR|Access denied", readLine(t, carol))
}

func TestRedirectDeadNode(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(*wire.Conn) {})

	core.Directory.Put("doc.txt", nodeID)
	require.NoError(t, core.ACL.Add("doc.txt", "alice"))
	core.Members.Remove(nodeID)

	alice := initAs(t, core, "alice")
	require.NoError(t, alice.WriteLine("READ|doc.txt"))
	assert.Equal(t, "ERROR|SS not available", readLine(t, alice))

	require.NoError(t, alice.WriteLine("READ|ghost.txt"))
	assert.Equal(t, "ERROR|Access denied", readLine(t, alice))
}

func TestDeleteOwnerOnly(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(ss *wire.Conn) {
		line, err := ss.ReadLine()
		if err != nil {
			return
		}
		assert.Equal(t, "DELETE|doc.txt", line)
		_ = ss.WriteLine("SUCCESS|File 'doc.txt' deleted")
	})

	core.Directory.Put("doc.txt", nodeID)
	require.NoError(t, core.ACL.Add("doc.txt", "alice"))
	require.NoError(t, core.ACL.Grant("doc.txt", "bob", acl.Write))

	bob := initAs(t, core, "bob")
	require.NoError(t, bob.WriteLine("DELETE|doc.txt"))
	assert.Equal(t, "ERROR|Only owner can delete", readLine(t, bob))

	alice := initAs(t, core, "alice")
	require.NoError(t, alice.WriteLine("DELETE|doc.txt"))
	assert.Equal(t, "SUCCESS|File deleted successfully!", readLine(t, alice))

	_, ok := core.Directory.Lookup("doc.txt")
	assert.False(t, ok)
	_, ok = core.ACL.Owner("doc.txt")
	assert.False(t, ok)
}

func TestViewFiltering(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(*wire.Conn) {})

	core.Directory.Put("mine.txt", nodeID)
	core.Directory.Put("theirs.txt", nodeID)
	require.NoError(t, core.ACL.Add("mine.txt", "alice"))
	require.NoError(t, core.ACL.Add("theirs.txt", "bob"))

	alice := initAs(t, core, "alice")

	require.NoError(t, alice.WriteLine("VIEW"))
	assert.Equal(t, "SUCCESS|", readLine(t, alice))
	assert.Equal(t, []string{"--> mine.txt"}, readUntilStop(t, alice))

	require.NoError(t, alice.WriteLine("VIEW|-a"))
	assert.Equal(t, "SUCCESS|", readLine(t, alice))
	assert.Equal(t, []string{"--> mine.txt", "--> theirs.txt"}, readUntilStop(t, alice))
}

func TestListUsers(t *testing.T) {
	core := newTestCore(t)

	alice := initAs(t, core, "alice")
	_ = initAs(t, core, "bob")

	require.NoError(t, alice.WriteLine("LIST"))
	assert.Equal(t, "SUCCESS|Users:", readLine(t, alice))
	assert.Equal(t, []string{"--> alice", "--> bob"}, readUntilStop(t, alice))
}

func TestAccessGrantRevoke(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(*wire.Conn) {})
	core.Directory.Put("doc.txt", nodeID)
	require.NoError(t, core.ACL.Add("doc.txt", "alice"))

	alice := initAs(t, core, "alice")
	bob := initAs(t, core, "bob")

	require.NoError(t, bob.WriteLine("ADDACCESS|-R|doc.txt|carol"))
	assert.Equal(t, "ERROR|Only owner can grant access", readLine(t, bob))

	require.NoError(t, alice.WriteLine("ADDACCESS|-X|doc.txt|bob"))
	assert.Equal(t, "ERROR|Invalid access type (use -R or -W)", readLine(t, alice))

	require.NoError(t, alice.WriteLine("ADDACCESS|-W|doc.txt|bob"))
	assert.Equal(t, "SUCCESS|Access granted successfully!", readLine(t, alice))
	assert.True(t, core.ACL.Check("doc.txt", "bob", acl.Write))

	require.NoError(t, alice.WriteLine("REMACCESS|doc.txt|bob"))
	assert.Equal(t, "SUCCESS|Access removed successfully!", readLine(t, alice))
	assert.False(t, core.ACL.Check("doc.txt", "bob", acl.Read))

	require.NoError(t, alice.WriteLine("ADDACCESS|-R|doc.txt|alice"))
	assert.Equal(t, "ERROR|Cannot change owner access", readLine(t, alice))
}

func TestInfoAppendsAccessSection(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(ss *wire.Conn) {
		line, err := ss.ReadLine()
		if err != nil {
			return
		}
		assert.Equal(t, "INFO|doc.txt", line)
		_ = ss.WriteLine("SUCCESS|")
		_ = ss.WriteLine("Filename: doc.txt")
		_ = ss.WriteLine("Owner: alice")
		_ = ss.WriteLine("Words: 3")
		_ = ss.WriteStop()
	})

	core.Directory.Put("doc.txt", nodeID)
	require.NoError(t, core.ACL.Add("doc.txt", "alice"))
	require.NoError(t, core.ACL.Grant("doc.txt", "bob", acl.Read))

	alice := initAs(t, core, "alice")
	require.NoError(t, alice.WriteLine("INFO|doc.txt"))
	assert.Equal(t, "SUCCESS|", readLine(t, alice))
	assert.Equal(t, []string{
		"Filename: doc.txt",
		"Owner: alice",
		"Words: 3",
		"ACCESS",
		"Owner: alice",
		"Readers: bob",
		"Writers: -",
	}, readUntilStop(t, alice))
}

func TestExecReturnsContent(t *testing.T) {
	core := newTestCore(t)
	nodeID := fakeStorageNode(t, core, func(ss *wire.Conn) {
		line, err := ss.ReadLine()
		if err != nil {
			return
		}
		assert.Equal(t, "CLEANREAD|run.txt", line)
		_ = ss.WriteLine("SUCCESS|")
		_ = ss.WriteLine("echo hello.")
		// Connection close marks end of content.
	})

	core.Directory.Put("run.txt", nodeID)
	require.NoError(t, core.ACL.Add("run.txt", "alice"))

	alice := initAs(t, core, "alice")
	require.NoError(t, alice.WriteLine("EXEC|run.txt"))
	assert.Equal(t, "SUCCESS|", readLine(t, alice))
	assert.Equal(t, []string{"echo hello."}, readUntilStop(t, alice))

	bob := initAs(t, core, "bob")
	require.NoError(t, bob.WriteLine("EXEC|run.txt"))
	assert.Equal(t, "ERROR|Access denied", readLine(t, bob))
}

func TestUnknownCommand(t *testing.T) {
	core := newTestCore(t)
	c := initAs(t, core, "alice")

	require.NoError(t, c.WriteLine("NOPE|x"))
	assert.Equal(t, "ERROR|Unknown command: NOPE", readLine(t, c))
}
