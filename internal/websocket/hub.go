package websocket

import (
	"encoding/json"
	"sync"
	"time"
)

// DealUpdate is pushed to every subscriber of a trade code after a change.
type DealUpdate struct {
	TradeCode        string    `json:"trade_code"`
	Status           string    `json:"status"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(tradeCode string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tradeCode] == nil {
		h.clients[tradeCode] = make(map[*Client]struct{})
	}
	h.clients[tradeCode][client] = struct{}{}
}

func (h *Hub) Unregister(tradeCode string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[tradeCode] == nil {
		return
	}
	delete(h.clients[tradeCode], client)
	if len(h.clients[tradeCode]) == 0 {
		delete(h.clients, tradeCode)
	}
}

func (h *Hub) Subscribers(tradeCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tradeCode])
}

// BroadcastDeal never blocks. Slow subscribers miss updates.
func (h *Hub) BroadcastDeal(update DealUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[update.TradeCode] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
