package net

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// testLogger drops Debug output: read/write loops may still log it after
// the test has returned.
func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newSessionPair(t *testing.T, clientOpts Options) (client, server *Session) {
	t.Helper()
	log := testLogger(t)
	cc, sc := net.Pipe()

	type result struct {
		s   *Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := Accept(sc, 1, testHandshake(), Options{}, log)
		done <- result{s, err}
	}()

	client, err := Connect(testCtx(t), cc, clientOpts, log)
	require.NoError(t, err)
	res := <-done
	require.NoError(t, res.err)

	t.Cleanup(func() {
		client.Close()
		res.s.Close()
	})
	return client, res.s
}

// rawServer writes the handshake itself and returns the conn so a test can
// put arbitrary bytes on the wire.
func rawServer(t *testing.T, clientOpts Options) (*Session, net.Conn) {
	t.Helper()
	cc, sc := net.Pipe()
	go WriteHandshake(sc, testHandshake())

	client, err := Connect(testCtx(t), cc, clientOpts, testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		sc.Close()
	})
	return client, sc
}

func TestSession_ExchangeBothWays(t *testing.T) {
	client, server := newSessionPair(t, Options{})
	ctx := testCtx(t)

	assert.Equal(t, testHandshake(), client.Handshake())

	client.Send([]byte{0x23, 0x00})
	client.Send([]byte{0x01, 0x00, 'a', 'b', 'c'})
	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x23, 0x00}, got)
	got, err = server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 'a', 'b', 'c'}, got)

	for _, p := range testPayloads() {
		server.Send(p)
	}
	for _, want := range testPayloads() {
		got, err := client.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSession_ShortPayloadIsDropped(t *testing.T) {
	client, server := newSessionPair(t, Options{})
	ctx := testCtx(t)

	client.Send([]byte{0x11})
	client.Send([]byte{0x18, 0x00})

	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x18, 0x00}, got)
	assert.False(t, client.IsClosed())
	assert.False(t, server.IsClosed())
}

func TestSession_FragmentedStream(t *testing.T) {
	client, conn := rawServer(t, Options{ReadBufferSize: 5})
	payloads := testPayloads()
	wire := serverToClient(t, payloads)

	go func() {
		for off := 0; off < len(wire); off += 3 {
			end := min(off+3, len(wire))
			if _, err := conn.Write(wire[off:end]); err != nil {
				return
			}
		}
	}()

	ctx := testCtx(t)
	for _, want := range payloads {
		got, err := client.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSession_HeaderMismatchClosesSession(t *testing.T) {
	client, conn := rawServer(t, Options{})

	bad := NewServerEncoder(testVersion, [4]byte{1, 1, 1, 1})
	pkt, err := bad.Encode([]byte{0x11, 0x00})
	require.NoError(t, err)
	go conn.Write(pkt)

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed")
	}
	assert.ErrorIs(t, client.Err(), ErrHeaderMismatch)
	assert.True(t, client.IsClosed())
}

func TestSession_PacketsQueuedBeforeCloseAreDelivered(t *testing.T) {
	client, conn := rawServer(t, Options{})
	wire := serverToClient(t, [][]byte{{0x11, 0x00}, {0x00, 0x00, 0x05}})

	go func() {
		conn.Write(wire)
		conn.Close()
	}()

	ctx := testCtx(t)
	got, err := client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x00}, got)
	got, err = client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x05}, got)

	_, err = client.Recv(ctx)
	assert.Error(t, err)
}

func TestSession_RateLimit(t *testing.T) {
	client, conn := rawServer(t, Options{PacketsPerSecond: 1})
	wire := serverToClient(t, [][]byte{{0x11, 0x00}, {0x11, 0x00}, {0x11, 0x00}})
	go conn.Write(wire)

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed")
	}
	assert.ErrorContains(t, client.Err(), "rate")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	client, _ := newSessionPair(t, Options{})
	client.Close()
	client.Close()
	client.Send([]byte{0x18, 0x00}) // no-op after close

	assert.ErrorIs(t, client.Err(), ErrSessionClosed)
	_, err := client.Recv(testCtx(t))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestConnect_MalformedHandshake(t *testing.T) {
	cc, sc := net.Pipe()
	defer sc.Close()
	go WriteFrame(sc, []byte{0x53, 0x00, 0x05, 0x00, 'x'})

	_, err := Connect(testCtx(t), cc, Options{}, testLogger(t))
	assert.ErrorIs(t, err, ErrMalformedHandshake)
}

func TestServer_AcceptAndDial(t *testing.T) {
	log := testLogger(t)
	srv, err := NewServer("127.0.0.1:0", Handshake{Version: testVersion, Patch: "1", Locale: 8}, Options{}, log)
	require.NoError(t, err)
	defer srv.Shutdown()
	go srv.AcceptLoop()

	ctx := testCtx(t)
	client, err := Dial(ctx, srv.Addr().String(), Options{}, log)
	require.NoError(t, err)
	defer client.Close()

	var server *Session
	select {
	case server = <-srv.NewSessions():
	case <-ctx.Done():
		t.Fatal("no session accepted")
	}
	defer server.Close()

	assert.Equal(t, uint16(testVersion), client.Handshake().Version)
	assert.Equal(t, client.Handshake(), server.Handshake())
	assert.Equal(t, "127.0.0.1", server.RemoteIP())

	client.Send([]byte{0x18, 0x00})
	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x18, 0x00}, got)
}
