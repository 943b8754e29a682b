package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ksh277/Travleap-sub004/internal/auth"
	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Storefront pages connect cross-origin; access control happens per
	// channel, not at the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame is a client -> server protocol message.
type inboundFrame struct {
	Type    string `json:"type"` // authenticate | subscribe | unsubscribe
	Token   string `json:"token,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// controlFrame is a server -> client protocol acknowledgement.
type controlFrame struct {
	Type    string `json:"type"` // connected | authenticated | subscribed | unsubscribed | error
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}

// eventFrame wraps a broadcast event for the wire.
type eventFrame struct {
	Type string `json:"type"`
	domain.InventoryUpdateEvent
}

// Client is one websocket observer connection. Unauthenticated until an
// authenticate frame arrives; restricted to public channels until then.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	verifier *auth.Verifier
	logger   *logger.Logger

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	identity      *auth.Identity
	subscriptions map[string]struct{}
}

// trySend queues a frame without blocking. Returns false when the buffer is
// full, meaning the client is too slow to keep up.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ServeWS upgrades an HTTP request to a websocket observer connection.
func ServeWS(hub *Hub, verifier *auth.Verifier, log *logger.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("realtime: websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:           hub,
		conn:          conn,
		verifier:      verifier,
		logger:        log,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]struct{}),
	}

	c.sendControl(controlFrame{Type: "connected"})
	go c.writePump()
	// The request context dies as soon as this handler returns; the
	// connection needs its own lifetime for the lookups subscribe frames
	// trigger later.
	ctx, cancel := context.WithCancel(context.Background())
	go c.readPump(ctx, cancel)
}

func (c *Client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.hub.detach(c)
		c.closeSlow()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugw("realtime: connection closed unexpectedly", "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendControl(controlFrame{Type: "error", Message: "malformed frame"})
			continue
		}
		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame inboundFrame) {
	switch frame.Type {
	case "authenticate":
		id, err := c.verifier.Verify(frame.Token)
		if err != nil {
			c.sendControl(controlFrame{Type: "error", Message: "authentication failed"})
			return
		}
		c.identity = id
		c.sendControl(controlFrame{Type: "authenticated"})

	case "subscribe":
		if frame.Channel == "" {
			c.sendControl(controlFrame{Type: "error", Message: "channel required"})
			return
		}
		if err := c.hub.Subscribe(ctx, c, frame.Channel); err != nil {
			msg := "subscription failed"
			if errors.Is(err, ErrChannelForbidden) {
				msg = "channel not permitted"
			}
			c.sendControl(controlFrame{Type: "error", Channel: frame.Channel, Message: msg})
			return
		}
		c.sendControl(controlFrame{Type: "subscribed", Channel: frame.Channel})

	case "unsubscribe":
		c.hub.Unsubscribe(c, frame.Channel)
		c.sendControl(controlFrame{Type: "unsubscribed", Channel: frame.Channel})

	default:
		c.sendControl(controlFrame{Type: "error", Message: "unknown frame type"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendControl(frame controlFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.trySend(data)
}

// closeSlow tears the connection down without waiting for in-flight writes.
func (c *Client) closeSlow() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
