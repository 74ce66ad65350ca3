package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/metrics"
	"github.com/scrypster/luminaries/pkg/types"
)

// Run status message types pushed to websocket clients.
const (
	MessageRunStarted  = "run_started"
	MessageRunFinished = "run_finished"
)

// RunMessage is the payload broadcast for run lifecycle changes.
type RunMessage struct {
	Type     string                        `json:"type"`
	RunID    string                        `json:"run_id"`
	PersonID string                        `json:"person_id"`
	Trigger  types.Trigger                 `json:"trigger"`
	Status   types.PersonStatus            `json:"status"`
	Stages   map[string]types.StageOutcome `json:"stages,omitempty"`
	Error    string                        `json:"error,omitempty"`
	Counts   *types.RunCounts              `json:"counts,omitempty"`
}

// Hub manages websocket connections and broadcasts run status.
type Hub struct {
	clients    map[clientInterface]bool
	broadcast  chan interface{}
	register   chan clientInterface
	unregister chan clientInterface
	origins    []string
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	close()
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
	once sync.Once
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewHub creates a hub. origins are host patterns accepted in the Origin
// header; same-host requests are always accepted.
func NewHub(origins ...string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[clientInterface]bool),
		broadcast:  make(chan interface{}, 256),
		register:   make(chan clientInterface),
		unregister: make(chan clientInterface),
		origins:    origins,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's message loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(count))
			logging.Debug().Int("clients", count).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(count))
			logging.Debug().Int("clients", count).Msg("WebSocket client disconnected")

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logging.Error().Err(err).Msg("Failed to marshal websocket message")
				continue
			}

			// Full lock: slow clients are removed from the map.
			h.mu.Lock()
			for client := range h.clients {
				sendChan := client.getSendChannel()
				select {
				case sendChan <- data:
				default:
					close(sendChan)
					delete(h.clients, client)
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(count))

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(0)
}

// Broadcast sends a message to all connected clients without blocking.
func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("WebSocket broadcast channel full, dropping message")
	}
}

// RunStarted and RunFinished match the engine callback signature.
func (h *Hub) RunStarted(run *types.EnrichmentRun) {
	h.Broadcast(newRunMessage(MessageRunStarted, run))
}

func (h *Hub) RunFinished(run *types.EnrichmentRun) {
	h.Broadcast(newRunMessage(MessageRunFinished, run))
}

func newRunMessage(kind string, run *types.EnrichmentRun) RunMessage {
	msg := RunMessage{
		Type:     kind,
		RunID:    run.ID,
		PersonID: run.PersonID,
		Trigger:  run.Trigger,
		Status:   run.Status,
		Error:    run.Error,
	}
	if kind == MessageRunFinished {
		// Copied: the engine owns the run.
		msg.Stages = make(map[string]types.StageOutcome, len(run.Stages))
		for k, v := range run.Stages {
			msg.Stages[k] = v
		}
		counts := run.Counts
		msg.Counts = &counts
	}
	return msg
}

// Register adds a client to the hub.
func (h *Hub) Register(client clientInterface) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the request. Clients only receive; anything they send
// is drained.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.origins,
	})
	if err != nil {
		// Accept has already written the error response.
		logging.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	defer c.shutdown()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			logging.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

func (c *Client) readPump() {
	defer c.shutdown()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		c.hub.Unregister(c)
		c.close()
	})
}

// MockClient is a client without a connection, for tests.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
