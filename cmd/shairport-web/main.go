// Package main is the entry point for the shairport MQTT web bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timhodson/shairport-mqtt-web/internal/config"
	"github.com/timhodson/shairport-mqtt-web/internal/domain/nowplaying"
	"github.com/timhodson/shairport-mqtt-web/internal/infra/mqtt"
	"github.com/timhodson/shairport-mqtt-web/internal/transport/httpapi"
	"github.com/timhodson/shairport-mqtt-web/internal/version"
)

// broadcastWindow collapses the metadata burst a track change produces into
// a single SSE push.
const broadcastWindow = 50 * time.Millisecond

func main() {
	// Command line flags
	configPath := flag.String("config", "config.yaml", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Unrecoverable configuration errors are fatal before the service
	// begins listening.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}

	versionInfo := version.GetInfo()
	log.Info().Msgf("%s", versionInfo.String())
	log.Info().
		Str("broker", cfg.BrokerURL()).
		Str("topic", cfg.MQTT.Topic).
		Str("listen", cfg.ListenAddr()).
		Bool("credentials_set", cfg.MQTT.Username != "").
		Msg("Configuration")

	// The state aggregate: written only by the bus receive path, read by
	// all HTTP handlers.
	state := nowplaying.NewState()
	decoder := nowplaying.Decoder{FallbackCoverType: cfg.CoverType}

	busClient := mqtt.New(cfg, func(subtopic string, payload []byte) {
		ev, err := decoder.Decode(subtopic, payload)
		if err != nil {
			log.Warn().Err(err).Str("subtopic", subtopic).Msg("Dropped malformed message")
			return
		}
		if ev == nil {
			return
		}
		log.Debug().Stringer("event", ev.Kind).Str("subtopic", subtopic).Msg("Metadata event")
		state.Apply(*ev)
	})

	server := httpapi.NewServer(state, busClient)

	debouncer := httpapi.NewUpdateDebouncer(broadcastWindow, server.BroadcastState)
	defer debouncer.Stop()
	state.OnChange(debouncer.Trigger)

	// Connection retries run indefinitely; a down broker is visible via
	// /health and state staleness, never fatal.
	if err := busClient.Connect(); err != nil {
		log.Warn().Err(err).Msg("Initial MQTT connect pending, retrying in background")
	}

	// Setup HTTP server
	mux := http.NewServeMux()
	server.Routes(mux)

	httpServer := &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     corsMiddleware(mux),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /api/events is a long-lived stream.
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		debouncer.Stop()
		server.Close()
		busClient.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr()).Msg("HTTP server listening")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
