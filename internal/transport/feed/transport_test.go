package feed

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/internal/core/sim"
)

func TestWSServerStreamsFrames(t *testing.T) {
	h := NewHub(nil)
	s := NewWSServer("127.0.0.1:0", h, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(l)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	url := fmt.Sprintf("ws://%s/ws", l.Addr())
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Push(testFrame(7, 2))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, buf, err := conn.ReadMessage()
	require.NoError(t, err)

	var got sim.Frame
	require.NoError(t, json.Unmarshal(buf, &got))
	require.Equal(t, uint64(7), got.Tick)
	require.Equal(t, 2, got.Stats.Active)
}

func TestWSServerDropsDeparted(t *testing.T) {
	h := NewHub(nil)
	s := NewWSServer("127.0.0.1:0", h, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(l)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", l.Addr()), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.Eventually(t, func() bool { return h.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.Subscribers() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestQUICServerStreamsFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil)
	s := NewQUICServer("127.0.0.1:0", h, nil)
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	conn, err := quic.DialAddr(ctx, s.Addr().String(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{feedALPN},
	}, nil)
	require.NoError(t, err)
	defer conn.CloseWithError(0, "done")

	stream, err := conn.AcceptUniStream(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)
	h.Push(testFrame(9, 1))

	line, err := bufio.NewReader(stream).ReadBytes('\n')
	require.NoError(t, err)

	var got sim.Frame
	require.NoError(t, json.Unmarshal(line, &got))
	require.Equal(t, uint64(9), got.Tick)
}
