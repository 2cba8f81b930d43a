package listeners

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"api-prodmon/internal/models"
)

// WSMessage is the envelope pushed to dashboard websocket clients.
type WSMessage struct {
	Type      string      `json:"type"` // "barcode_detected", "external_barcode"
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WSClient is one connected dashboard browser.
type WSClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *WSHub
}

// WSHub fans detection events out to every connected dashboard client.
type WSHub struct {
	clients map[*WSClient]bool

	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan []byte

	mu sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		Register:   make(chan *WSClient, 10),
		Unregister: make(chan *WSClient, 10),
		Broadcast:  make(chan []byte, 100),
	}
}

// Run drives the hub's register/unregister/broadcast loop. Must run in
// its own goroutine.
func (h *WSHub) Run() {
	log.Println("🔌 WebSocket hub started")

	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("✅ WS client %s connected (total: %d)", client.ID, total)

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, exists := h.clients[client]; exists {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("❌ WS client %s disconnected (remaining: %d)", client.ID, len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			h.mu.RLock()
			snapshot := make([]*WSClient, 0, len(h.clients))
			for client := range h.clients {
				snapshot = append(snapshot, client)
			}
			h.mu.RUnlock()

			for _, client := range snapshot {
				select {
				case client.Send <- message:
				default:
					// Full send queue means the browser stopped reading.
					log.Printf("⚠️  WS client %s send queue full, dropping client", client.ID)
					h.Unregister <- client
				}
			}
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishDetection pushes a detection event to every dashboard client.
func (h *WSHub) PublishDetection(event models.DetectionEvent) {
	msgType := "barcode_detected"
	if event.Source != models.DetectionSourceServer {
		msgType = "external_barcode"
	}

	message := WSMessage{
		Type:      msgType,
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      event,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error serializing websocket message: %v", err)
		return
	}

	select {
	case h.Broadcast <- jsonData:
	default:
		log.Println("⚠️  WS broadcast queue full, dropping detection event")
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  WS read error: %v", err)
			}
			break
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleDetectionsWS upgrades the request and attaches the client to the hub.
func HandleDetectionsWS(hub *WSHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("❌ Error upgrading websocket: %v", err)
			return
		}

		client := &WSClient{
			ID:   fmt.Sprintf("%s_%d", c.ClientIP(), time.Now().UnixNano()),
			Conn: conn,
			Send: make(chan []byte, 256),
			Hub:  hub,
		}

		client.Hub.Register <- client

		go client.writePump()
		go client.readPump()

		log.Printf("🔌 WS client connected: %s", client.ID)
	}
}
