package broadcast

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServer_StartBroadcastStop(t *testing.T) {
	port := freePort(t)
	server := New("test-broadcast", "127.0.0.1", port, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop(2 * time.Second)

	var conns []net.Conn
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	require.Eventually(t, func() bool { return server.PeerCount() == 3 }, time.Second, 10*time.Millisecond)

	sent := server.Broadcast([]byte("!AIVDM,1,1,,A,test,0*00\r\n"))
	assert.Equal(t, 3, sent)

	for _, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		line, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, "!AIVDM")
	}
}

func TestServer_DoubleStartIsNoOp(t *testing.T) {
	port := freePort(t)
	server := New("test-broadcast", "127.0.0.1", port, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop(time.Second)

	assert.NoError(t, server.Start(ctx))
}

func TestServer_BindFailureReportsError(t *testing.T) {
	port := freePort(t)
	blocker, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer blocker.Close()

	server := New("test-broadcast", "127.0.0.1", port, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = server.Start(ctx)
	assert.Error(t, err)
	assert.False(t, server.Health().Healthy)
}

func TestServer_EvictsPeerOnDisconnect(t *testing.T) {
	port := freePort(t)
	server := New("test-broadcast", "127.0.0.1", port, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop(2 * time.Second)

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return server.PeerCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return server.PeerCount() == 0 }, 6*time.Second, 100*time.Millisecond)
}

func TestServer_MaxConnectionsCeiling(t *testing.T) {
	port := freePort(t)
	server := New("test-broadcast", "127.0.0.1", port, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop(2 * time.Second)

	first, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return server.PeerCount() == 1 }, time.Second, 10*time.Millisecond)

	second, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer second.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, server.PeerCount())
}
