package nowplaying

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformed indicates a payload that could not be decoded for its
// subtopic. The caller logs and drops the message; the stream is best-effort.
var ErrMalformed = errors.New("malformed payload")

// Decoder maps raw bus payloads to typed metadata events. It is stateless;
// a zero Decoder with a fallback type set is ready to use.
type Decoder struct {
	// FallbackCoverType is reported for artwork whose format is not
	// recognized from its magic bytes.
	FallbackCoverType string
}

// Decode turns one bus message into zero or one event. The subtopic is the
// topic suffix below the configured base topic; only its final path segment
// is significant (shairport nests most messages under ssnc/). Unknown
// segments yield (nil, nil).
func (d Decoder) Decode(subtopic string, payload []byte) (*Event, error) {
	key := subtopic
	if i := strings.LastIndexByte(subtopic, '/'); i >= 0 {
		key = subtopic[i+1:]
	}

	switch key {
	case "title":
		return d.textEvent(KindTrackTitle, key, payload)
	case "artist":
		return d.textEvent(KindArtist, key, payload)
	case "album":
		return d.textEvent(KindAlbum, key, payload)
	case "genre":
		return d.textEvent(KindGenre, key, payload)
	case "client_name":
		return d.textEvent(KindClientName, key, payload)

	case "volume":
		vol, err := parseVolume(payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindVolume, Volume: vol}, nil

	case "cover":
		// shairport publishes an empty retained payload to blank the
		// topic; that is not new artwork.
		if len(payload) == 0 {
			return nil, nil
		}
		blob := make([]byte, len(payload))
		copy(blob, payload)
		return &Event{
			Kind:        KindArtwork,
			Artwork:     blob,
			ArtworkType: d.sniffCoverType(payload),
		}, nil

	case "prgr":
		prgr, err := parseProgress(payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindProgress, Progress: prgr}, nil

	case "mdst":
		// Start of a new track's metadata bundle: clear the old track
		// before its detail events arrive.
		return &Event{Kind: KindTrackChanged}, nil

	case "active_start", "play_start", "pbeg":
		return &Event{Kind: KindPlaybackStatus, Status: StatusPlaying}, nil

	case "pend":
		return &Event{Kind: KindPlaybackStatus, Status: StatusPaused}, nil

	case "active_end":
		return &Event{Kind: KindClientDisconnected}, nil
	}

	// play_end keeps metadata visible after a song ends; everything else
	// (mden, pcst, pvol echoes, ...) is simply not ours to interpret.
	return nil, nil
}

func (d Decoder) textEvent(kind EventKind, key string, payload []byte) (*Event, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformed, key)
	}
	return &Event{Kind: kind, Text: string(payload)}, nil
}

// parseVolume extracts the AirPlay volume from shairport's
// "airplay_volume,volume,lowest_volume,highest_volume" payload. A bare
// number is accepted too.
func parseVolume(payload []byte) (float64, error) {
	if !utf8.Valid(payload) {
		return 0, fmt.Errorf("%w: volume is not valid UTF-8", ErrMalformed)
	}
	first, _, _ := strings.Cut(string(payload), ",")
	vol, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: volume %q: %v", ErrMalformed, first, err)
	}
	return vol, nil
}

// parseProgress parses the "start/current/end" RTP timestamp triple.
func parseProgress(payload []byte) (Progress, error) {
	if !utf8.Valid(payload) {
		return Progress{}, fmt.Errorf("%w: progress is not valid UTF-8", ErrMalformed)
	}
	parts := strings.Split(string(payload), "/")
	if len(parts) != 3 {
		return Progress{}, fmt.Errorf("%w: progress %q", ErrMalformed, payload)
	}
	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return Progress{}, fmt.Errorf("%w: progress %q: %v", ErrMalformed, payload, err)
		}
		vals[i] = v
	}
	return Progress{Start: vals[0], Current: vals[1], End: vals[2]}, nil
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	gifMagic  = []byte("GIF")
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// sniffCoverType detects the image format from magic bytes, falling back to
// the configured type for anything unrecognized.
func (d Decoder) sniffCoverType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg"
	case bytes.HasPrefix(data, pngMagic):
		return "image/png"
	case bytes.HasPrefix(data, gifMagic):
		return "image/gif"
	case bytes.HasPrefix(data, riffMagic) && len(data) >= 12 && bytes.Equal(data[8:12], webpMagic):
		return "image/webp"
	}
	if d.FallbackCoverType != "" {
		return d.FallbackCoverType
	}
	return "image/jpeg"
}
