// Package websocket pushes thread events to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"threadboard/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	// Registered clients grouped by the thread they follow. uuid.Nil holds
	// clients that follow every thread.
	clients map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	events     chan models.ThreadEvent
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan models.ThreadEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and events until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	log.Info("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for topic, topicClients := range h.clients {
				for client := range topicClients {
					close(client.send)
				}
				delete(h.clients, topic)
			}
			h.mu.Unlock()
			log.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.topic]; !ok {
				h.clients[client.topic] = make(map[*Client]bool)
			}
			h.clients[client.topic][client] = true
			h.mu.Unlock()
			log.WithField("topic", client.topic).Debug("WebSocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if topicClients, ok := h.clients[client.topic]; ok {
				if _, ok := topicClients[client]; ok {
					delete(topicClients, client)
					close(client.send)
					if len(topicClients) == 0 {
						delete(h.clients, client.topic)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.events:
			payload, err := json.Marshal(event)
			if err != nil {
				log.WithError(err).Error("Failed to encode thread event")
				continue
			}
			h.mu.RLock()
			for _, topic := range topicsFor(event) {
				for client := range h.clients[topic] {
					select {
					case client.send <- payload:
					default:
						log.WithField("topic", topic).Warn("WebSocket send buffer full; event dropped")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify queues event for delivery. It gives up after a second so a stalled
// hub never blocks a request.
func (h *Hub) Notify(event models.ThreadEvent) {
	select {
	case h.events <- event:
	case <-h.done:
	case <-time.After(time.Second):
		log.WithField("thread", event.ThreadID).Warn("Timeout queuing thread event; hub might be busy")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, topicClients := range h.clients {
		n += len(topicClients)
	}
	return n
}

// topicsFor lists who hears about event: everyone following all threads, the
// thread itself, and for replies the parent thread.
func topicsFor(event models.ThreadEvent) []uuid.UUID {
	topics := []uuid.UUID{uuid.Nil, event.ThreadID}
	if event.ParentID != nil {
		topics = append(topics, *event.ParentID)
	}
	return topics
}
