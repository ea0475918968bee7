// Package notifications delivers realtime account events over websockets.
// Services publish through Redis so every API instance can reach the sockets it holds.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"familynova/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per account
	maxConnsPerAccount = 8
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrAccountConnLimit = errors.New("account connection limit reached")
	ErrServerConnLimit  = errors.New("server connection limit reached")
)

// Hub maps accountID -> set of Clients.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[*Client]struct{})}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "notification hub" }

// Register a connection for accountID. It fails when connection limits are exceeded.
func (h *Hub) Register(accountID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.totalConns >= maxTotalConns {
		return nil, ErrServerConnLimit
	}

	m, ok := h.conns[accountID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[accountID] = m
	}
	if len(m) >= maxConnsPerAccount {
		return nil, ErrAccountConnLimit
	}

	client := NewClient(h, conn, accountID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes client. It is safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.AccountID]
	if !ok {
		return
	}
	if _, exists := m[client]; exists {
		delete(m, client)
		h.totalConns--
		observability.WebSocketConnectionsTotal.Dec()
		client.closeSend()
	}
	if len(m) == 0 {
		delete(h.conns, client.AccountID)
	}
}

// Broadcast sends message to all connections for accountID.
func (h *Hub) Broadcast(accountID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[accountID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// ConnectionCount returns the number of open sockets for accountID.
func (h *Hub) ConnectionCount(accountID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[accountID])
}

// StartWiring subscribes to the per-account Redis channels and forwards
// each payload to the matching local connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if !strings.HasPrefix(channel, userChannelPrefix) {
			slog.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		var accountID uint
		if _, err := fmt.Sscanf(channel, userChannelPrefix+"%d", &accountID); err != nil {
			slog.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.Broadcast(accountID, payload)
	})
}

// Shutdown closes every websocket with a going-away frame.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for accountID, accountConns := range h.conns {
		for client := range accountConns {
			client.closeSend()
			observability.WebSocketConnectionsTotal.Dec()
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				slog.Debug("failed to write close message", slog.Uint64("account_id", uint64(accountID)), slog.String("error", err.Error()))
			}
			_ = client.Conn.Close()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
