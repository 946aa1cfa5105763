package datagram

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestEmitter_StartEmitStop(t *testing.T) {
	port := freePort(t)
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	require.NoError(t, err)
	defer listener.Close()

	e := New("test-datagram", "127.0.0.1", port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer e.Stop(time.Second)

	ok := e.Emit([]byte("!AIVDM,1,1,,A,test,0*00\r\n"))
	assert.True(t, ok)

	listener.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "!AIVDM")

	sent, failed := e.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
}

func TestEmitter_EmitFailsWhenNotStarted(t *testing.T) {
	e := New("test-datagram", "127.0.0.1", freePort(t))
	assert.False(t, e.Emit([]byte("x")))
}

func TestEmitter_DoubleStartIsNoOp(t *testing.T) {
	port := freePort(t)
	e := New("test-datagram", "127.0.0.1", port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	defer e.Stop(time.Second)
	assert.NoError(t, e.Start(ctx))
}

func TestEmitter_StopThenEmitFails(t *testing.T) {
	port := freePort(t)
	e := New("test-datagram", "127.0.0.1", port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop(time.Second))

	assert.False(t, e.Emit([]byte("x")))
}

func TestEmitter_HealthReflectsRunningState(t *testing.T) {
	port := freePort(t)
	e := New("test-datagram", "127.0.0.1", port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, e.Health().Healthy)

	require.NoError(t, e.Start(ctx))
	defer e.Stop(time.Second)
	assert.True(t, e.Health().Healthy)
}
