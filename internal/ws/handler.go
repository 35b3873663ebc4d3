package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 256 * 1024, // 256KB for base64 encoded JPEG frames
	CheckOrigin: func(r *http.Request) bool {
		// Access is controlled by the token middleware
		return true
	},
}

// CommandSubmitter accepts operator commands typed by clients
type CommandSubmitter interface {
	SubmitText(text string) bool
}

// Handler handles WebSocket connections for real-time detections
type Handler struct {
	hub      *DetectionHub
	commands CommandSubmitter
}

// NewHandler creates a new WebSocket handler. commands may be nil, in which
// case inbound messages are ignored.
func NewHandler(hub *DetectionHub, commands CommandSubmitter) *Handler {
	return &Handler{hub: hub, commands: commands}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection from %s", r.RemoteAddr)

	c := h.hub.register(conn)
	go h.readPump(c)
}

// readPump forwards text messages to the command queue and detects
// client disconnection
func (h *Handler) readPump(c *client) {
	defer func() {
		h.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	done := make(chan struct{})
	defer func() {
		ticker.Stop()
		close(done)
	}()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage || h.commands == nil {
			continue
		}

		input := string(data)
		ack := CommandAck{Type: TypeCommand, Input: input, Accepted: h.commands.SubmitText(input)}
		if err := c.writeJSON(ack); err != nil {
			return
		}
	}
}
