package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bleproxy/internal/deviceinfo"
	"github.com/srg/bleproxy/internal/protocol"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/internal/testutils"
)

func newTestServer(t *testing.T) *Server {
	th := testutils.NewTestHelper(t)
	be := testutils.NewFakeBackend()
	p := proxy.New(be, 2, false, th.Logger)
	info := deviceinfo.NewProvider("bleproxy", "Bluetooth Proxy", false, false, be, th.Logger)
	srv := NewServer(Config{Name: "bleproxy", ServerInfo: "bleproxy test"}, p, info, th.Logger)

	require.NoError(t, srv.Listen("127.0.0.1", 0))
	go func() { _ = srv.Serve() }()
	return srv
}

func dialAndHello(t *testing.T, srv *Server) net.Conn {
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Write(protocol.Frame(&protocol.HelloRequest{ClientInfo: "test"}))
	require.NoError(t, err)

	msg := readMessage(t, conn)
	_, ok := msg.(*protocol.HelloResponse)
	require.True(t, ok)
	return conn
}

func readMessage(t *testing.T, conn net.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	var buf []byte
	chunk := make([]byte, 1024)
	for {
		msgType, payload, consumed, err := protocol.ParseFrame(buf)
		if err == nil {
			buf = buf[consumed:]
			msg, err := protocol.Decode(msgType, payload)
			require.NoError(t, err)
			return msg
		}
		require.ErrorIs(t, err, protocol.ErrNeedMore)

		n, err := conn.Read(chunk)
		require.NoError(t, err)
		buf = append(buf, chunk[:n]...)
	}
}

func TestServer_AcceptAndHandshake(t *testing.T) {
	srv := newTestServer(t)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	dialAndHello(t, srv)

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestServer_ShutdownRequestsDisconnect(t *testing.T) {
	srv := newTestServer(t)
	conn := dialAndHello(t, srv)

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		close(done)
	}()

	// The server asks the client to disconnect; acknowledge it.
	msg := readMessage(t, conn)
	_, ok := msg.(*protocol.DisconnectRequest)
	require.True(t, ok, "shutdown MUST send a disconnect request")
	_, err := conn.Write(protocol.Frame(&protocol.DisconnectResponse{}))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	assert.Zero(t, srv.ConnectionCount())

	// No new connections after shutdown
	_, err = net.Dial("tcp", srv.Addr().String())
	assert.Error(t, err)
}

func TestServer_ShutdownDeadlineWithUnresponsiveClient(t *testing.T) {
	srv := newTestServer(t)
	dialAndHello(t, srv)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.Less(t, time.Since(start), 5*time.Second,
		"an unresponsive client MUST NOT stall shutdown past the disconnect budget")
}
