// Package alerts pushes committed donations to connected websocket
// listeners (overlay widgets, dashboards).
package alerts

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// Alert is the event sent for every committed donation.
type Alert struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Amount  uint64 `json:"amount"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed donations out to all connected clients.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Alert
	clients    map[*client]struct{}
	log        *logger.Logger
	upgrader   websocket.Upgrader
}

// NewHub creates a hub. Run must be started before serving connections.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Alert, 16),
		clients:    make(map[*client]struct{}),
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// NotifyDonation queues an alert for broadcast. Never blocks the deposit
// path: if the hub is saturated the alert is dropped.
func (h *Hub) NotifyDonation(rec coffee.Record) {
	alert := Alert{ID: rec.ID, Name: rec.Name, Message: rec.Message, Amount: rec.Amount}
	select {
	case h.broadcast <- alert:
	default:
		h.log.Warnf("alert channel full, dropping alert for %s", rec.ID)
	}
}

// Run processes registrations and broadcasts until the channel loop exits
// with the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case alert := <-h.broadcast:
			payload, err := json.Marshal(alert)
			if err != nil {
				h.log.WithError(err).Error("marshal alert")
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// ServeHTTP upgrades the connection and streams alerts to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	h.register <- c

	go func() {
		defer func() {
			h.unregister <- c
			conn.Close()
		}()
		for payload := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()
}
