package api

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"fortean/domain/core"
	"fortean/ports"
)

const clientBuffer = 16

// Hub fans session log entries out to SSE subscribers. It implements
// ports.SessionSink so a running pipeline can be teed into it alongside
// the persistent sink. Slow subscribers lose entries rather than block
// the pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[core.SessionID]map[chan ports.SessionEntry]bool
	logger  *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[core.SessionID]map[chan ports.SessionEntry]bool),
		logger:  zap.L().With(zap.String("component", "sse")),
	}
}

// Subscribe registers a listener for one session's entries
func (h *Hub) Subscribe(sessionID core.SessionID) chan ports.SessionEntry {
	ch := make(chan ports.SessionEntry, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[chan ports.SessionEntry]bool)
	}
	h.clients[sessionID][ch] = true
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (h *Hub) Unsubscribe(sessionID core.SessionID, ch chan ports.SessionEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[sessionID]
	if !ok || !clients[ch] {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(h.clients, sessionID)
	}
}

// Emit broadcasts one entry to every subscriber of its session,
// implementing ports.SessionSink. Never blocks and never fails.
func (h *Hub) Emit(ctx context.Context, entry ports.SessionEntry) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients[entry.SessionID] {
		select {
		case ch <- entry:
		default:
			h.logger.Warn("subscriber buffer full, dropping entry",
				zap.String("session_id", entry.SessionID.String()),
				zap.Int("seq", entry.Seq))
		}
	}
	return nil
}

// ClientCount returns how many subscribers a session has
func (h *Hub) ClientCount(sessionID core.SessionID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

var _ ports.SessionSink = (*Hub)(nil)
