package nowplaying

import (
	"sync"
	"time"
)

// SampleRate is the RTP timestamp rate for AirPlay audio. Progress payloads
// count frames at this rate.
const SampleRate = 44100

// State is the single mutable "now playing" aggregate. One goroutine (the
// bus receive loop) applies events; any number of HTTP readers take
// snapshots concurrently. Multi-field mutations happen under one lock
// acquisition, so a snapshot never observes half of an event's changes.
type State struct {
	mu sync.RWMutex

	status     string
	title      string
	artist     string
	album      string
	genre      string
	clientName string
	volume     float64
	volumeSet  bool

	cover        []byte
	coverType    string
	coverVersion int64

	progress Progress

	lastUpdated time.Time

	// onChange, when set, is called after every applied event, outside
	// the lock.
	onChange func()
}

// NewState creates an empty state: nothing announced, playback stopped.
func NewState() *State {
	return &State{status: StatusStopped}
}

// OnChange registers a callback invoked after each applied event. Must be
// set before the bus receive loop starts.
func (s *State) OnChange(fn func()) {
	s.onChange = fn
}

// Apply folds one event into the state. Each event maps to exactly one
// set-field or clear-fields mutation; fields an event does not mention are
// left untouched. Events are applied in bus-delivery order; the broker's
// in-order delivery on a single topic is what makes this sufficient.
func (s *State) Apply(ev Event) {
	s.mu.Lock()
	switch ev.Kind {
	case KindTrackTitle:
		s.title = ev.Text
	case KindArtist:
		s.artist = ev.Text
	case KindAlbum:
		s.album = ev.Text
	case KindGenre:
		s.genre = ev.Text
	case KindClientName:
		s.clientName = ev.Text
	case KindVolume:
		s.volume = ev.Volume
		s.volumeSet = true
	case KindArtwork:
		s.cover = ev.Artwork
		s.coverType = ev.ArtworkType
		s.coverVersion++
	case KindProgress:
		// Receiving progress is shairport's way of saying audio is
		// flowing.
		s.progress = ev.Progress
		s.status = StatusPlaying
	case KindPlaybackStatus:
		s.status = ev.Status
	case KindTrackChanged:
		s.clearTrackLocked()
	case KindClientDisconnected:
		s.clearTrackLocked()
		s.clientName = ""
		s.progress = Progress{}
		s.status = StatusStopped
	}
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange()
	}
}

// clearTrackLocked resets the per-track fields (must hold lock).
func (s *State) clearTrackLocked() {
	s.title = ""
	s.artist = ""
	s.album = ""
	s.genre = ""
	if s.cover != nil {
		s.cover = nil
		s.coverType = ""
		s.coverVersion++
	}
}

// Snapshot is an immutable point-in-time copy of the state, shaped for the
// JSON API. Cover bytes are deliberately excluded; HasCover and
// CoverVersion let clients decide when to refetch /api/cover.
type Snapshot struct {
	Status       string  `json:"status"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album"`
	Genre        string  `json:"genre"`
	ClientName   string  `json:"client_name"`
	Volume       float64 `json:"volume"`
	HasVolume    bool    `json:"has_volume"`
	HasCover     bool    `json:"has_cover"`
	CoverVersion int64   `json:"cover_version"`
	Duration     float64 `json:"duration"`
	Elapsed      float64 `json:"elapsed"`
	Remaining    float64 `json:"remaining"`
	LastUpdated  string  `json:"last_updated,omitempty"`
}

// Snapshot returns the current state. Safe to call from any goroutine while
// events are being applied.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:       s.status,
		Title:        s.title,
		Artist:       s.artist,
		Album:        s.album,
		Genre:        s.genre,
		ClientName:   s.clientName,
		Volume:       s.volume,
		HasVolume:    s.volumeSet,
		HasCover:     s.cover != nil,
		CoverVersion: s.coverVersion,
	}
	if !s.lastUpdated.IsZero() {
		snap.LastUpdated = s.lastUpdated.UTC().Format(time.RFC3339)
	}

	if s.progress.End > s.progress.Start {
		duration := float64(s.progress.End-s.progress.Start) / SampleRate
		elapsed := float64(s.progress.Current-s.progress.Start) / SampleRate
		snap.Duration = round1(duration)
		snap.Elapsed = round1(elapsed)
		snap.Remaining = round1(max(0, duration-elapsed))
	}
	return snap
}

// Artwork returns a copy of the current cover art and its content type, or
// (nil, "") when absent.
func (s *State) Artwork() ([]byte, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cover == nil {
		return nil, ""
	}
	blob := make([]byte, len(s.cover))
	copy(blob, s.cover)
	return blob, s.coverType
}

// CoverVersion returns the artwork generation counter.
func (s *State) CoverVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coverVersion
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int64(v*10-0.5)) / 10
	}
	return float64(int64(v*10+0.5)) / 10
}
