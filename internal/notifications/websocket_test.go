package notifications

import (
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exercises the pumps over a real socket: a broadcast on the hub must reach the peer.
func TestClient_PumpsOverRealSocket(t *testing.T) {
	hub := NewHub()
	registered := make(chan struct{})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		client, err := hub.Register(77, conn)
		if err != nil {
			_ = conn.Close()
			return
		}
		close(registered)
		go client.WritePump()
		client.ReadPump()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	defer func() { _ = app.Shutdown() }()

	conn, resp, err := gorillaws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	select {
	case <-registered:
	case <-time.After(testEventuallyTimeout):
		t.Fatal("client did not register")
	}

	hub.Broadcast(77, `{"type":"message_received"}`)

	_ = conn.SetReadDeadline(time.Now().Add(testEventuallyTimeout))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gorillaws.TextMessage, msgType)
	assert.JSONEq(t, `{"type":"message_received"}`, string(data))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ConnectionCount(77) == 0 }, testEventuallyTimeout, testPollInterval)
}
