// Package httpapi exposes the aggregated playback state over HTTP.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/timhodson/shairport-mqtt-web/internal/domain/nowplaying"
	"github.com/timhodson/shairport-mqtt-web/internal/domain/remote"
	"github.com/timhodson/shairport-mqtt-web/internal/version"
)

// Publisher is the outbound side of the bus as the facade sees it.
type Publisher interface {
	Publish(payload string) error
	Connected() bool
}

// Server serves playback state and accepts transport control requests.
// Read endpoints only take state snapshots and never touch the bus; the
// control endpoint is the single path that can block on network I/O,
// bounded by the publisher's timeout.
type Server struct {
	state     *nowplaying.State
	publisher Publisher
	hub       *EventHub
}

// NewServer wires the facade to the shared state handle and the bus
// publisher.
func NewServer(state *nowplaying.State, publisher Publisher) *Server {
	return &Server{
		state:     state,
		publisher: publisher,
		hub:       NewEventHub(),
	}
}

// Routes registers all endpoints on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/cover", s.handleCover)
	mux.HandleFunc("POST /api/control/{command}", s.handleControl)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// BroadcastState pushes the current snapshot to all SSE subscribers.
func (s *Server) BroadcastState() {
	s.hub.Broadcast(s.snapshotJSON())
}

// Close disconnects all SSE subscribers.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) snapshotJSON() []byte {
	payload, err := json.Marshal(s.state.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode state snapshot")
		return []byte("{}")
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	blob, contentType := s.state.Artwork()
	if blob == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// The cover version doubles as a cheap ETag so clients re-triggered
	// by cover_version bumps don't refetch identical bytes.
	etag := fmt.Sprintf(`"cover-%d"`, s.state.CoverVersion())
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(blob); err != nil {
		log.Debug().Err(err).Msg("Cover write failed")
	}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	command := r.PathValue("command")

	token, err := remote.Translate(command)
	if err != nil {
		log.Debug().Str("command", command).Msg("Rejected unknown command")
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown command: %s", command),
		})
		return
	}

	// Fire and forget: the command's effect, if any, comes back through
	// the metadata stream. There is no request/response correlation on
	// the remote-control channel.
	if err := s.publisher.Publish(token); err != nil {
		log.Error().Err(err).Str("command", token).Msg("Command publish failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "mqtt broker unavailable",
		})
		return
	}

	log.Info().Str("command", command).Str("dacp", token).Msg("Command published")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"command": token,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.GetInfo())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.publisher.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"mqtt":   "disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mqtt":   "connected",
	})
}
