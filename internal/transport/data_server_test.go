package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

func TestServeDecodesFramedEnvelope(t *testing.T) {
	got := make(chan *wire.StrongEnvelope, 1)
	srv, err := NewServer(0, 4096, func(conn net.Conn, env *wire.StrongEnvelope) error {
		got <- env
		return nil
	})
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	e := &wire.StrongEnvelope{
		Version:    1,
		MsgType:    3,
		SenderNode: ids.NodeID(7),
		Sequence:   1,
		Payload:    []byte("task payload"),
	}
	_, err = conn.Write(e.Encode())
	require.NoError(t, err)

	select {
	case env := <-got:
		assert.EqualValues(t, 3, env.MsgType)
		assert.Equal(t, ids.NodeID(7), env.SenderNode)
		assert.Equal(t, []byte("task payload"), env.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the envelope")
	}
}

func TestServeDropsConnectionOnBadMagic(t *testing.T) {
	srv, err := NewServer(0, 4096, func(conn net.Conn, env *wire.StrongEnvelope) error {
		t.Error("handler must not run for a bad-magic frame")
		return nil
	})
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	garbage := make([]byte, wire.StrongHeaderLen)
	_, err = conn.Write(garbage)
	require.NoError(t, err)

	// The server tears the connection down; the next read must hit EOF.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}
