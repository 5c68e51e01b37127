// Package remote translates web transport commands into the DACP tokens
// shairport-sync accepts on its MQTT remote-control topic.
package remote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand indicates a command outside the supported set. It never
// reaches the bus; the HTTP layer turns it into a client error.
var ErrUnknownCommand = errors.New("unknown command")

// commands maps web-facing command names to DACP tokens.
var commands = map[string]string{
	"play":        "play",
	"pause":       "pause",
	"playpause":   "playpause",
	"playresume":  "playresume",
	"next":        "nextitem",
	"previous":    "previtem",
	"fastforward": "beginff",
	"rewind":      "beginrew",
	"volumeup":    "volumeup",
	"volumedown":  "volumedown",
	"mute":        "mutetoggle",
	"stop":        "stop",
	"shuffle":     "shuffle_songs",
	"repeat":      "repeat",
}

// Translate maps a command name (case-insensitive) to its DACP payload.
func Translate(command string) (string, error) {
	token, ok := commands[strings.ToLower(command)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	return token, nil
}

// Commands returns the supported command names, for documentation endpoints
// and error messages.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}
