package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types on the WebSocket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 64
)

// WSMessage is one frame in either direction. EventType names the channel
// of an event frame.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists channels to add or drop, such as "lwrf.state".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame with its payload left undecoded until the
// type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// corsMiddleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSClient is one WebSocket connection and its channel subscriptions.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		subject:  subject,
		send:     make(chan []byte, wsSendBufferSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades GET /api/v1/ws. With a JWT secret configured the
// caller must present a single-use ticket from POST /api/v1/auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if s.cfg.Auth.JWTSecret != "" {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			fail(w, http.StatusUnauthorized, "ticket query parameter is required")
			return
		}
		var ok bool
		if subject, ok = s.tickets.redeem(ticket); !ok {
			fail(w, http.StatusUnauthorized, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	c := newWSClient(s.hub, conn, subject)
	s.hub.Register(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *WSClient) pingInterval() time.Duration {
	return time.Duration(c.hub.cfg.PingInterval) * time.Second
}

// readDeadline allows one missed ping interval plus the pong timeout.
func (c *WSClient) readDeadline() time.Time {
	return time.Now().Add(c.pingInterval() + time.Duration(c.hub.cfg.PongTimeout)*time.Second)
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	c.conn.SetReadDeadline(c.readDeadline()) //nolint:errcheck // A failed deadline surfaces on the next read.
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err, "subject", c.subject)
			}
			return
		}
		c.conn.SetReadDeadline(c.readDeadline()) //nolint:errcheck // As above.
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.hub.cfg.PongTimeout) * time.Second)) //nolint:errcheck // Write reports it.
		return c.conn.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case data := <-c.send:
			if !write(websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateChannels(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *WSClient) updateChannels(req wsRequest) {
	var body WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		c.reply(req.ID, WSTypeError, errorPayload("invalid "+req.Type+" payload"))
		return
	}

	add := req.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range body.Channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket subscriptions changed", "op", req.Type, "channels", body.Channels, "subject", c.subject)
	c.reply(req.ID, WSTypeResponse, map[string]any{req.Type + "d": body.Channels})
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: timestamp(time.Now()),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}

// enqueue drops data when the client is stopped or its buffer is full.
func (c *WSClient) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// stop ends the write loop, which sends a close frame and closes the
// connection.
func (c *WSClient) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
