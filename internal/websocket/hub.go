// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

const broadcastBuffer = 256

// Message types pushed to dashboard clients.
const (
	TypeSnapshot = "snapshot"
	TypeReading  = "reading"
	TypeBreach   = "breach"
)

// Envelope wraps every message sent to a client.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
// Broadcasting never blocks the caller: when the queue is full the message is dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("WebSocket client registered", zap.String("remote", client.remote()))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Debug("WebSocket client unregistered", zap.String("remote", client.remote()))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// slow consumer; drop it rather than stall the others
					h.logger.Warn("WebSocket client send buffer full, removing", zap.String("remote", client.remote()))
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// RegisterClient hands a new client to the run loop. It returns false once
// the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues a typed message for every client.
func (h *Hub) Publish(msgType string, payload any) {
	b, err := Encode(msgType, payload)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.logger.Debug("Broadcast queue full, message dropped", zap.String("type", msgType))
	}
}

// Encode renders an envelope.
func Encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}
