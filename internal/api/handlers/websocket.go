package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/middleware"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Default maximum message size allowed from peer; a layout request
	// carries the whole edge list.
	defaultMaxMessageSize = 1 << 20

	sendBufferSize = 64
)

// Message types exchanged over /ws/layout.
const (
	MsgLayout   = "layout"   // client: start a layout, payload is a layout.Request
	MsgCancel   = "cancel"   // client: cancel the running layout
	MsgFrame    = "frame"    // server: one iteration
	MsgDone     = "done"     // server: finished layout.Output
	MsgCanceled = "canceled" // server: the run stopped on a cancel message
	MsgRun      = "run"      // server, broadcast: summary of a run finished by any client
	MsgError    = "error"    // server: structured API error
)

// WebSocketMessage is a server-to-client message.
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientMessage is a client-to-server message. Every sends only every n-th
// frame; 0 and 1 send them all.
type ClientMessage struct {
	Type    string          `json:"type"`
	Every   int             `json:"every,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FramePayload carries one iteration of a streamed layout.
type FramePayload struct {
	layout.StepStats
	Positions [][2]float64 `json:"positions"`
}

// RunSummary is broadcast to every client when a streamed run finishes.
type RunSummary struct {
	RunID        string `json:"run_id"`
	StoredID     int64  `json:"stored_id,omitempty"`
	Hash         string `json:"hash"`
	Nodes        int    `json:"nodes"`
	Iterations   int    `json:"iterations"`
	ForcedMerges int    `json:"forced_merges"`
	DurationMS   int64  `json:"duration_ms"`
}

// LayoutStreamer computes a layout and reports every iteration.
// *layout.Service implements it.
type LayoutStreamer interface {
	Stream(ctx context.Context, req layout.Request, onFrame func(layout.Frame) error) (*layout.Output, error)
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	svc  LayoutStreamer
	send chan []byte

	// ctx ends when either pump stops.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// Hub maintains the set of active clients and broadcasts messages to them.
// A client's send channel is closed only by the hub, on unregister, after
// the client's layout goroutine has returned.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub. Nothing is delivered until Run starts.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run delivers registrations and broadcasts until ctx ends, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			client.conn.Close()
			metrics.WebSocketConnections.Dec()
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			logger.Info("WebSocket client connected", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebSocketConnections.Dec()
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Info("WebSocket client disconnected", "total_clients", total)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// A slow client misses the summary; its own frames are unaffected.
					logger.Debug("Client send buffer full, skipping broadcast")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues msg for every connected client. It never blocks; a full
// queue drops the message.
func (h *Hub) Broadcast(msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return errors.New("websocket: broadcast queue full")
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// enqueue hands msg to the write pump, waiting while the buffer is full.
func (c *Client) enqueue(ctx context.Context, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) sendError(apiErr *apierr.Error) {
	_ = c.enqueue(c.ctx, WebSocketMessage{Type: MsgError, Payload: apiErr})
}

// readPump reads client messages until the connection fails, then waits for
// any running layout before unregistering.
func (c *Client) readPump(maxMessageSize int64) {
	defer func() {
		c.cancel()
		c.runs.Wait()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError(apierr.ValidationInvalidJSON())
			continue
		}
		switch msg.Type {
		case MsgLayout:
			c.startLayout(msg)
		case MsgCancel:
			c.mu.Lock()
			if c.cancelRun != nil {
				c.cancelRun()
			}
			c.mu.Unlock()
		default:
			c.sendError(apierr.ValidationInvalidValue("type", "Unknown message type: "+msg.Type))
		}
	}
}

// startLayout streams one layout in its own goroutine. A client runs at most
// one layout at a time.
func (c *Client) startLayout(msg ClientMessage) {
	var req layout.Request
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		c.sendError(apierr.ValidationInvalidFormat("Invalid layout request: " + err.Error()))
		return
	}

	c.mu.Lock()
	if c.cancelRun != nil {
		c.mu.Unlock()
		c.sendError(apierr.LayoutInvalidParams("A layout is already running on this connection"))
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelRun = cancel
	c.runs.Add(1)
	c.mu.Unlock()

	every := msg.Every
	if every < 1 {
		every = 1
	}

	go func() {
		defer c.runs.Done()

		out, err := c.svc.Stream(ctx, req, func(f layout.Frame) error {
			if (f.Stats.Iteration+1)%every != 0 {
				return nil
			}
			return c.enqueue(ctx, WebSocketMessage{
				Type:    MsgFrame,
				Payload: FramePayload{StepStats: f.Stats, Positions: f.XY()},
			})
		})

		// Free the slot before replying so the client may start the next run
		// as soon as it reads the reply.
		c.mu.Lock()
		c.cancelRun = nil
		c.mu.Unlock()
		cancel()

		switch {
		case c.ctx.Err() != nil:
			// connection gone
			return
		case errors.Is(err, context.Canceled):
			_ = c.enqueue(c.ctx, WebSocketMessage{Type: MsgCanceled})
			return
		case err != nil:
			c.sendError(toAPIError(err))
			return
		}

		_ = c.enqueue(c.ctx, WebSocketMessage{Type: MsgDone, Payload: out})
		if err := c.hub.Broadcast(WebSocketMessage{Type: MsgRun, Payload: RunSummary{
			RunID:        out.RunID,
			StoredID:     out.StoredID,
			Hash:         out.Hash,
			Nodes:        len(out.Positions),
			Iterations:   out.Iterations,
			ForcedMerges: out.ForcedMerges,
			DurationMS:   out.Duration.Milliseconds(),
		}}); err != nil {
			logger.Warn("Failed to broadcast run summary", "error", err, "run_id", out.RunID)
		}
	}()
}

// writePump pumps messages to the connection, one WebSocket message each.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// unblock senders waiting on a full buffer
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			metrics.WebSocketMessagesSent.Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			return
		}
	}
}

// WebSocketHandler streams layouts over WebSocket connections.
type WebSocketHandler struct {
	hub            *Hub
	svc            LayoutStreamer
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// NewWebSocketHandler creates a handler bound to hub. Browser connections
// must come from one of allowedOrigins; requests without an Origin header
// are accepted. maxMessageSize <= 0 uses the default.
func NewWebSocketHandler(hub *Hub, svc LayoutStreamer, allowedOrigins []string, maxMessageSize int64) *WebSocketHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	origins := middleware.NewOriginPolicy(allowedOrigins)
	return &WebSocketHandler{
		hub: hub,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.Allows(origin)
			},
		},
		maxMessageSize: maxMessageSize,
	}
}

// HandleWebSocket upgrades the connection and serves layout requests on it.
// GET /ws/layout
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.hub.done:
		apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Server is shutting down"))
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		logger.WithRequestID(r.Context()).Warn("Failed to upgrade to WebSocket", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:    h.hub,
		conn:   conn,
		svc:    h.svc,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.maxMessageSize)
}

// Hub returns the WebSocket hub for external broadcasting
func (h *WebSocketHandler) Hub() *Hub {
	return h.hub
}
