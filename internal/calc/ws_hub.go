package calc

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aegis/hedge-engine/internal/metrics"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/session"
)

// Message types.
const (
	MsgUpdate = "update"
	MsgSolve  = "solve"
	MsgState  = "state"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// WSRequest is a JSON message received from a WebSocket client.
type WSRequest struct {
	Type   string            `json:"type"`
	Seq    uint64            `json:"seq"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WSState is a JSON message sent to a WebSocket client. Seq echoes the
// client message that produced it.
type WSState struct {
	Type    string                   `json:"type"`
	Seq     uint64                   `json:"seq"`
	Pending bool                     `json:"pending"`
	Fields  session.Fields           `json:"fields"`
	Result  *model.HedgeResult       `json:"result"`
	Points  []model.SensitivityPoint `json:"points"`
	Markers []model.Marker           `json:"markers"`
	Error   string                   `json:"error,omitempty"`
}

// WSHub tracks live-session connections. Each connection owns one
// session.State; nothing is shared between connections.
type WSHub struct {
	logger     *zap.Logger
	calc       session.Calculator
	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	mu         sync.RWMutex
}

// wsClient is one connection. Writes are serialized by mu since solve
// completions arrive from other goroutines.
type wsClient struct {
	conn   *websocket.Conn
	state  *session.State
	logger *zap.Logger
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWSHub creates a hub that solves with calc and accepts upgrades from
// the given origins ("*" allows any). Requests without an Origin header are
// always accepted.
func NewWSHub(logger *zap.Logger, calc session.Calculator, origins []string) *WSHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &WSHub{
		logger: logger,
		calc:   calc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's bookkeeping loop. It returns when ctx is done, after
// closing every open connection.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			h.logger.Info("ws client connected", zap.Int("total", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.cancel()
				c.conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.cancel()
				c.conn.Close()
				delete(h.clients, c)
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
// The initial state (default fields, no result) is sent immediately.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	// The request context ends with the handler; solves live as long as the
	// connection.
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		conn:   conn,
		state:  session.New(session.DefaultFields),
		logger: h.logger,
		cancel: cancel,
	}
	if !h.add(c) {
		cancel()
		conn.Close()
		return
	}

	if err := c.send(0, c.state.Snapshot()); err != nil {
		h.remove(c)
		return
	}

	// Read pump: apply client messages and detect disconnects.
	go func() {
		defer h.remove(c)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			h.handleMessage(ctx, c, data)
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()
}

// add registers c. It reports false once the hub has stopped.
func (h *WSHub) add(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *WSHub) remove(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.cancel()
		c.conn.Close()
	}
}

func (h *WSHub) handleMessage(ctx context.Context, c *wsClient, data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(0, c.state.Snapshot(), "invalid message")
		return
	}

	switch req.Type {
	case MsgUpdate:
		// Apply in a stable order so a bad name doesn't depend on map order.
		names := make([]string, 0, len(req.Fields))
		for name := range req.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := c.state.SetField(name, req.Fields[name]); err != nil {
				c.sendError(req.Seq, c.state.Snapshot(), err.Error())
				return
			}
		}
		c.send(req.Seq, c.state.Snapshot())

	case MsgSolve:
		done := c.state.Submit(ctx, h.calc)
		c.send(req.Seq, c.state.Snapshot())
		go func() {
			comp := <-done
			if !comp.Applied {
				return
			}
			if comp.Err != nil {
				h.logger.Debug("ws solve failed", zap.Uint64("seq", req.Seq), zap.Error(comp.Err))
			}
			c.send(req.Seq, c.state.Snapshot())
		}()

	default:
		c.sendError(req.Seq, c.state.Snapshot(), "unknown message type: "+req.Type)
	}
}

// send writes a state message. A failed write means the peer is gone; the
// read pump notices and unregisters the client, so callers may ignore it.
func (c *wsClient) send(seq uint64, snap session.Snapshot) error {
	err := c.write(WSState{
		Type:    MsgState,
		Seq:     seq,
		Pending: snap.Pending,
		Fields:  snap.Fields,
		Result:  snap.Result,
		Points:  snap.Points,
		Markers: snap.Markers,
		Error:   snap.Error,
	})
	if err != nil {
		c.logger.Debug("ws write failed", zap.Uint64("seq", seq), zap.Error(err))
	}
	return err
}

func (c *wsClient) sendError(seq uint64, snap session.Snapshot, detail string) {
	snap.Error = detail
	c.send(seq, snap)
}

func (c *wsClient) write(msg WSState) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
