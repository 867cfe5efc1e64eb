package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfs/lexfs/internal/wire"
)

// dialStorage runs a storage control session over a pipe.
func dialStorage(t *testing.T, core *Core) *wire.Conn {
	t.Helper()

	nodeSide, serverSide := net.Pipe()
	f := &StorageFactory{Core: core}
	sess := f.NewConnection(serverSide)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Serve(ctx)
	}()
	t.Cleanup(func() {
		nodeSide.Close()
		cancel()
		<-done
	})

	return wire.NewConn(nodeSide, 0)
}

func TestStorageRegisterHandshake(t *testing.T) {
	core := newTestCore(t)
	c := dialStorage(t, core)

	require.NoError(t, c.WriteLine("REGISTER|10.0.0.5|9100|9101|a.txt,b.txt"))
	assert.Equal(t, "SUCCESS|SS_ID=0", readLine(t, c))

	assert.Equal(t, 1, core.Members.Count())
	node, ok := core.Directory.Lookup("a.txt")
	assert.True(t, ok)
	assert.Equal(t, 0, node)
	node, _ = core.Directory.Lookup("b.txt")
	assert.Equal(t, 0, node)
}

func TestStorageHandshakeErrors(t *testing.T) {
	core := newTestCore(t)

	c := dialStorage(t, core)
	require.NoError(t, c.WriteLine("HEARTBEAT_ACK"))
	assert.Equal(t, "ERROR|First message must be REGISTER", readLine(t, c))

	c2 := dialStorage(t, core)
	require.NoError(t, c2.WriteLine("REGISTER|10.0.0.5|notaport|9101|"))
	assert.Equal(t, "ERROR|Missing parameters", readLine(t, c2))
}

func TestStorageFileEvents(t *testing.T) {
	core := newTestCore(t)
	c := dialStorage(t, core)

	require.NoError(t, c.WriteLine("REGISTER|10.0.0.5|9100|9101|"))
	readLine(t, c)

	require.NoError(t, core.ACL.Add("x.txt", "alice"))

	require.NoError(t, c.WriteLine("FILE_CREATED|x.txt"))
	require.Eventually(t, func() bool {
		_, ok := core.Directory.Lookup("x.txt")
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.WriteLine("FILE_DELETED|x.txt"))
	require.Eventually(t, func() bool {
		_, ok := core.Directory.Lookup("x.txt")
		return !ok
	}, time.Second, 10*time.Millisecond)
	_, ok := core.ACL.Owner("x.txt")
	assert.False(t, ok)
}

func TestStorageDisconnectDropsNode(t *testing.T) {
	core := newTestCore(t)
	c := dialStorage(t, core)

	require.NoError(t, c.WriteLine("REGISTER|10.0.0.5|9100|9101|a.txt"))
	readLine(t, c)
	require.Equal(t, 1, core.Members.Count())

	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		return core.Members.Count() == 0
	}, time.Second, 10*time.Millisecond)
	_, ok := core.Directory.Lookup("a.txt")
	assert.False(t, ok)
}

func TestMonitorExpiresSilentNodes(t *testing.T) {
	core := newTestCore(t)

	n, err := core.Members.Register("10.0.0.5", 9100, 9101)
	require.NoError(t, err)
	core.Directory.Put("a.txt", n.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Zero grace expires every node on the first scan.
	go Monitor(ctx, core, 10*time.Millisecond, 0)

	require.Eventually(t, func() bool {
		return core.Members.Count() == 0
	}, time.Second, 10*time.Millisecond)
	_, ok := core.Directory.Lookup("a.txt")
	assert.False(t, ok)
}
