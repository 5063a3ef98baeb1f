package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/invertase/react-native-firebase/internal/events"
)

var _ events.Sink = (*Hub)(nil)

// Hub tracks connected clients and the stores each one uses. Events for a
// store go to every client that joined it.
type Hub struct {
	mu      sync.RWMutex
	clients map[WSClient]map[string]struct{}
	stores  map[string]map[WSClient]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[WSClient]map[string]struct{}),
		stores:  make(map[string]map[WSClient]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
	h.logger.Debug("ws register", "client", c.ID(), "clients", len(h.clients))
}

// Join subscribes a registered client to the events of store.
func (h *Hub) Join(store string, c WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return
	}
	if _, ok := joined[store]; ok {
		return
	}
	joined[store] = struct{}{}
	if h.stores[store] == nil {
		h.stores[store] = make(map[WSClient]struct{})
	}
	h.stores[store][c] = struct{}{}
	h.logger.Debug("ws join", "store", store, "client", c.ID(), "clients", len(h.stores[store]))
}

func (h *Hub) Unregister(c WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for store := range joined {
		delete(h.stores[store], c)
		if len(h.stores[store]) == 0 {
			delete(h.stores, store)
		}
	}
	delete(h.clients, c)
	close(c.GetSend())
	h.logger.Debug("ws unregister", "client", c.ID())
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(store string, data []byte) {
	if data == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.stores[store] {
		select {
		case c.GetSend() <- data:
			sent++
		default:
			h.logger.Warn("ws dropped message",
				"store", store,
				"client", c.ID(),
			)
		}
	}

	h.logger.Debug("ws broadcast",
		"store", store,
		"recipients", sent,
	)
}

// Push sends data to one client. It reports false when the client is gone
// or its buffer is full.
func (h *Hub) Push(c WSClient, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.GetSend() <- data:
		return true
	default:
		h.logger.Warn("ws dropped reply", "client", c.ID())
		return false
	}
}

func (h *Hub) Emit(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Name, err)
	}
	h.Broadcast(ev.Store, data)
	return nil
}
