// Package nowplaying reconstructs the current playback state from the
// shairport-sync MQTT metadata stream.
package nowplaying

// Status constants for playback state
const (
	StatusStopped = "stopped"
	StatusPlaying = "playing"
	StatusPaused  = "paused"
)

// EventKind identifies which metadata field an event carries.
type EventKind int

const (
	// KindTrackTitle carries the track title in Text.
	KindTrackTitle EventKind = iota
	// KindArtist carries the artist name in Text.
	KindArtist
	// KindAlbum carries the album name in Text.
	KindAlbum
	// KindGenre carries the genre in Text.
	KindGenre
	// KindClientName carries the AirPlay sender name in Text.
	KindClientName
	// KindVolume carries the AirPlay volume in Volume.
	KindVolume
	// KindArtwork carries cover art bytes in Artwork with ArtworkType.
	KindArtwork
	// KindProgress carries RTP playback progress in Progress.
	KindProgress
	// KindPlaybackStatus carries a transport state transition in Status.
	KindPlaybackStatus
	// KindTrackChanged signals that a new track's metadata follows; the
	// previous track's text fields and artwork must be cleared first.
	KindTrackChanged
	// KindClientDisconnected signals the end of the AirPlay session.
	KindClientDisconnected
)

// String returns the event kind name, for logging.
func (k EventKind) String() string {
	switch k {
	case KindTrackTitle:
		return "track_title"
	case KindArtist:
		return "artist"
	case KindAlbum:
		return "album"
	case KindGenre:
		return "genre"
	case KindClientName:
		return "client_name"
	case KindVolume:
		return "volume"
	case KindArtwork:
		return "artwork"
	case KindProgress:
		return "progress"
	case KindPlaybackStatus:
		return "playback_status"
	case KindTrackChanged:
		return "track_changed"
	case KindClientDisconnected:
		return "client_disconnected"
	default:
		return "unknown"
	}
}

// Progress is a playback position report in RTP timestamps, as published on
// the ssnc/prgr subtopic.
type Progress struct {
	Start   int64
	Current int64
	End     int64
}

// Event is one typed metadata change decoded from a bus message. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind        EventKind
	Text        string
	Volume      float64
	Artwork     []byte
	ArtworkType string
	Progress    Progress
	Status      string
}
