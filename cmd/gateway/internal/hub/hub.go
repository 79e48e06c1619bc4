// Package hub tracks live realtime connections grouped by authenticated
// subject and fans decoded change events out to them.
package hub

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/metrics"
	"github.com/pricewatch/crypto-notify/pkg/models"
)

// Realtime event names emitted to connections
const (
	EventPriceUpdate       = "priceUpdate"
	EventSignificantChange = "significantPriceChange"
)

// Envelope is the message body pushed to a connection
type Envelope struct {
	Event string             `json:"event"`
	Data  models.ChangeEvent `json:"data"`
}

type Client interface {
	ID() string
	SendJSON(v interface{})
	Close()
}

type record struct {
	subjectID     int64
	authenticated bool
}

// Hub owns the subject → connections mapping. A connection with no verified
// subject is tracked as anonymous and receives broadcasts only.
type Hub struct {
	mu      sync.RWMutex
	clients map[Client]record
	groups  map[int64]map[Client]bool

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[Client]record),
		groups:  make(map[int64]map[Client]bool),
		logger:  logger,
	}
}

// GroupName names a subject's delivery group deterministically, so targeting
// it needs no lookup table.
func GroupName(subjectID int64) string {
	return fmt.Sprintf("user-%d", subjectID)
}

// Register adds a connection. authenticated is false for connections whose
// token was missing or failed verification; they still connect.
func (h *Hub) Register(client Client, subjectID int64, authenticated bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = record{subjectID: subjectID, authenticated: authenticated}
	if authenticated {
		if h.groups[subjectID] == nil {
			h.groups[subjectID] = make(map[Client]bool)
		}
		h.groups[subjectID][client] = true
		h.logger.Info("Client connected",
			zap.String("client_id", client.ID()),
			zap.String("group", GroupName(subjectID)))
	} else {
		metrics.AnonymousConnectionsTotal.Inc()
		h.logger.Info("Anonymous client connected", zap.String("client_id", client.ID()))
	}

	metrics.ActiveConnections.Inc()
}

// Unregister removes a connection; group membership is cleaned up with it.
func (h *Hub) Unregister(client Client) {
	h.mu.Lock()
	rec, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		if rec.authenticated {
			delete(h.groups[rec.subjectID], client)
			if len(h.groups[rec.subjectID]) == 0 {
				delete(h.groups, rec.subjectID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.ActiveConnections.Dec()
		h.logger.Info("Client disconnected", zap.String("client_id", client.ID()))
		client.Close()
	}
}

// Dispatch routes one change event: a priceUpdate to the owner's group, and
// for significant moves a significantPriceChange broadcast to every
// connection regardless of ownership. Delivering to zero connections is fine.
func (h *Hub) Dispatch(event models.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if event.UserID != 0 {
		update := Envelope{Event: EventPriceUpdate, Data: event}
		for client := range h.groups[event.UserID] {
			client.SendJSON(update)
			metrics.DeliveriesTotal.WithLabelValues(EventPriceUpdate).Inc()
		}
	}

	if event.IsSignificant {
		broadcast := Envelope{Event: EventSignificantChange, Data: event}
		for client := range h.clients {
			client.SendJSON(broadcast)
			metrics.DeliveriesTotal.WithLabelValues(EventSignificantChange).Inc()
		}
	}
}

// ClientCount reports currently registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
