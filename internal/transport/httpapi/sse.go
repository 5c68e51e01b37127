package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// subscriberBuffer bounds how far a slow client may fall behind
	// before it is dropped.
	subscriberBuffer = 10

	keepaliveInterval = 30 * time.Second
)

// EventHub fans state snapshots out to connected server-sent-event clients.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
	closed      bool
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[chan []byte]struct{}),
	}
}

// subscribe registers a new client channel.
func (h *EventHub) subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subscribers[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch
}

// unsubscribe removes a client channel.
func (h *EventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast sends a payload to every subscriber. Clients whose buffers are
// full are dropped; a stuck reader must not stall the bus loop.
func (h *EventHub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			delete(h.subscribers, ch)
			close(ch)
			log.Debug().Msg("Dropped slow SSE client")
		}
	}
}

// SubscriberCount returns the number of connected clients.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects all subscribers and rejects new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// handleEvents streams state snapshots to the client as server-sent events.
// The first event is the current state; afterwards events follow bus
// activity through the debounced broadcast path.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	log.Debug().Str("remote", r.RemoteAddr).Msg("SSE client connected")

	if err := writeSSE(w, s.snapshotJSON()); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("remote", r.RemoteAddr).Msg("SSE client disconnected")
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			// Comment line keeps intermediaries from timing out the
			// connection.
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, payload []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
