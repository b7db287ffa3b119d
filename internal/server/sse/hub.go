// Package sse verteilt Authentifizierungsereignisse an Browser-Clients per
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"faceauth-go/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "sse",
}

// clientBuffer ist die Puffergröße pro Client
const clientBuffer = 8

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	done       chan struct{}

	mu sync.Mutex
}

// NewHub erstellt einen neuen Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, clientBuffer),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// NewClient erstellt einen gepufferten Client-Kanal
func NewClient() Client {
	return make(Client, clientBuffer)
}

// Run verarbeitet Registrierungen und Broadcasts, bis ctx beendet ist.
// Danach werden alle Client-Kanäle geschlossen.
func (h *Hub) Run(ctx context.Context) {
	log.WithFields(logFields).Debug("SSE-Hub gestartet")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.WithFields(logFields).Debug("SSE-Hub gestoppt")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.WithFields(logFields).Debugf("SSE-Client registriert, insgesamt %d", h.ClientCount())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					log.WithFields(logFields).Warn("SSE-Client zu langsam, Nachricht verworfen")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register fügt einen Client hinzu. Ist der Hub gestoppt, wird der Kanal sofort geschlossen.
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client)
	}
}

// Unregister entfernt einen Client; sein Kanal wird geschlossen
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount liefert die Anzahl der verbundenen Clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet message an alle Clients, ohne den Aufrufer zu blockieren
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.WithFields(logFields).Warn("SSE-Broadcast-Kanal voll, Nachricht verworfen")
	}
}

// PublishAuthEvent implementiert handlers.EventPublisher
func (h *Hub) PublishAuthEvent(ev mqtt.AuthEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}
	h.Broadcast(data)
	return nil
}
