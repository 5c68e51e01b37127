package nowplaying_test

import (
	"errors"
	"testing"

	"github.com/timhodson/shairport-mqtt-web/internal/domain/nowplaying"
)

var testDecoder = nowplaying.Decoder{FallbackCoverType: "image/jpeg"}

func decode(t *testing.T, subtopic string, payload []byte) *nowplaying.Event {
	t.Helper()
	ev, err := testDecoder.Decode(subtopic, payload)
	if err != nil {
		t.Fatalf("Decode(%q) error: %v", subtopic, err)
	}
	return ev
}

func TestDecodeTextFields(t *testing.T) {
	tests := []struct {
		subtopic string
		kind     nowplaying.EventKind
	}{
		{"title", nowplaying.KindTrackTitle},
		{"artist", nowplaying.KindArtist},
		{"album", nowplaying.KindAlbum},
		{"genre", nowplaying.KindGenre},
		{"client_name", nowplaying.KindClientName},
	}

	for _, tt := range tests {
		t.Run(tt.subtopic, func(t *testing.T) {
			ev := decode(t, tt.subtopic, []byte("Ça plane pour moi"))
			if ev == nil {
				t.Fatal("expected an event, got nil")
			}
			if ev.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", ev.Kind, tt.kind)
			}
			if ev.Text != "Ça plane pour moi" {
				t.Errorf("text = %q", ev.Text)
			}
		})
	}
}

func TestDecodeUsesFinalPathSegment(t *testing.T) {
	ev := decode(t, "ssnc/prgr", []byte("100/200/300"))
	if ev == nil || ev.Kind != nowplaying.KindProgress {
		t.Fatalf("expected progress event, got %+v", ev)
	}
	if ev.Progress != (nowplaying.Progress{Start: 100, Current: 200, End: 300}) {
		t.Errorf("progress = %+v", ev.Progress)
	}
}

func TestDecodeInvalidUTF8IsMalformed(t *testing.T) {
	_, err := testDecoder.Decode("title", []byte{0xFF, 0xFE, 0xFD})
	if !errors.Is(err, nowplaying.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeVolume(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		wantErr bool
	}{
		{"shairport quad", "-20.25,-36.00,-144.00,0.00", -20.25, false},
		{"bare number", "-15", -15, false},
		{"garbage", "loud", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := testDecoder.Decode("volume", []byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, nowplaying.ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Volume != tt.want {
				t.Errorf("volume = %v, want %v", ev.Volume, tt.want)
			}
		})
	}
}

func TestDecodeCoverSniffsContentType(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0x00}, "image/png"},
		{"gif", []byte("GIF89a...."), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"unknown falls back", []byte{0x00, 0x01, 0x02, 0x03}, "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := decode(t, "cover", tt.payload)
			if ev == nil {
				t.Fatal("expected an event, got nil")
			}
			if ev.Kind != nowplaying.KindArtwork {
				t.Errorf("kind = %v, want artwork", ev.Kind)
			}
			if ev.ArtworkType != tt.want {
				t.Errorf("content type = %q, want %q", ev.ArtworkType, tt.want)
			}
		})
	}
}

func TestDecodeCoverFallbackIsConfigurable(t *testing.T) {
	d := nowplaying.Decoder{FallbackCoverType: "image/bmp"}
	ev, err := d.Decode("cover", []byte{0x42, 0x4D, 0x00})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ArtworkType != "image/bmp" {
		t.Errorf("content type = %q, want image/bmp", ev.ArtworkType)
	}
}

func TestDecodeEmptyCoverIsIgnored(t *testing.T) {
	ev := decode(t, "cover", nil)
	if ev != nil {
		t.Errorf("expected nil event for empty cover, got %+v", ev)
	}
}

func TestDecodeCoverCopiesPayload(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0x01}
	ev := decode(t, "cover", payload)

	payload[3] = 0x99
	if ev.Artwork[3] != 0x01 {
		t.Error("decoder must not alias the bus payload buffer")
	}
}

func TestDecodeProgressMalformed(t *testing.T) {
	for _, payload := range []string{"1/2", "a/b/c", "1/2/3/4", ""} {
		if _, err := testDecoder.Decode("prgr", []byte(payload)); !errors.Is(err, nowplaying.ErrMalformed) {
			t.Errorf("Decode(prgr, %q): expected ErrMalformed, got %v", payload, err)
		}
	}
}

func TestDecodePlaybackTransitions(t *testing.T) {
	tests := []struct {
		subtopic string
		kind     nowplaying.EventKind
		status   string
	}{
		{"active_start", nowplaying.KindPlaybackStatus, nowplaying.StatusPlaying},
		{"play_start", nowplaying.KindPlaybackStatus, nowplaying.StatusPlaying},
		{"ssnc/pbeg", nowplaying.KindPlaybackStatus, nowplaying.StatusPlaying},
		{"ssnc/pend", nowplaying.KindPlaybackStatus, nowplaying.StatusPaused},
		{"ssnc/mdst", nowplaying.KindTrackChanged, ""},
		{"active_end", nowplaying.KindClientDisconnected, ""},
	}

	for _, tt := range tests {
		t.Run(tt.subtopic, func(t *testing.T) {
			ev := decode(t, tt.subtopic, nil)
			if ev == nil {
				t.Fatal("expected an event, got nil")
			}
			if ev.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", ev.Kind, tt.kind)
			}
			if ev.Status != tt.status {
				t.Errorf("status = %q, want %q", ev.Status, tt.status)
			}
		})
	}
}

func TestDecodeUnknownSubtopicsYieldNothing(t *testing.T) {
	for _, subtopic := range []string{"play_end", "ssnc/mden", "ssnc/pcst", "bogus", "ssnc/unknown"} {
		ev, err := testDecoder.Decode(subtopic, []byte("whatever"))
		if err != nil {
			t.Errorf("Decode(%q) error: %v", subtopic, err)
		}
		if ev != nil {
			t.Errorf("Decode(%q) = %+v, want nil", subtopic, ev)
		}
	}
}
