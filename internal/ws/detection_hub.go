package ws

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fusioncam/internal/pipeline"
	"fusioncam/internal/vision"
)

// client serializes writes to one connection
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// DetectionHub fans frame results out to websocket clients
type DetectionHub struct {
	clients map[*client]bool
	mu      sync.RWMutex

	// includeFrames attaches the annotated JPEG to each message
	includeFrames bool
	quality       int
	emptyBatches  bool
}

// HubOption configures a DetectionHub
type HubOption func(*DetectionHub)

// WithFrames attaches the annotated frame to every message
func WithFrames(quality int) HubOption {
	return func(h *DetectionHub) {
		h.includeFrames = true
		h.quality = quality
	}
}

// WithEmptyBatches also broadcasts frames that produced no detections
func WithEmptyBatches() HubOption {
	return func(h *DetectionHub) {
		h.emptyBatches = true
	}
}

// NewDetectionHub creates a new detection hub
func NewDetectionHub(opts ...HubOption) *DetectionHub {
	h := &DetectionHub{
		clients: make(map[*client]bool),
		quality: 70,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// register adds a connection
func (h *DetectionHub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[WS] Client registered (total: %d)", total)
	return c
}

// unregister removes a connection
func (h *DetectionHub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		log.Printf("[WS] Client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (h *DetectionHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a text message to all clients, dropping those that fail
func (h *DetectionHub) Broadcast(message []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] Error sending to client: %v", err)
			h.unregister(c)
			c.conn.Close()
		}
	}
}

// OnFrameResult implements pipeline.FrameResultHandler
func (h *DetectionHub) OnFrameResult(result *pipeline.FrameResult) {
	if result == nil || h.ClientCount() == 0 {
		return
	}
	if len(result.Detections) == 0 && !h.emptyBatches {
		return
	}

	msg := NewDetectionMessage(result)
	if h.includeFrames && result.Annotated != nil {
		frame, err := vision.EncodeJPEG(result.Annotated, h.quality)
		if err != nil {
			log.Printf("[WS] Error encoding frame %d: %v", result.FrameIndex, err)
		} else {
			msg.SetFrame(base64.StdEncoding.EncodeToString(frame))
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling detection message: %v", err)
		return
	}
	h.Broadcast(data)
}

var _ pipeline.FrameResultHandler = (*DetectionHub)(nil)
