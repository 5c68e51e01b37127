// Package config loads the bridge configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file or individual fields are absent.
const (
	defaultConfigPath     = "config.yaml"
	defaultBrokerHost     = "localhost"
	defaultBrokerPort     = 1883
	defaultClientID       = "shairport-web"
	defaultTopic          = "shairport"
	defaultListenHost     = "0.0.0.0"
	defaultListenPort     = 5000
	defaultCoverType      = "image/jpeg"
	defaultPublishTimeout = 5 * time.Second
)

// MQTT holds the broker connection settings.
type MQTT struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	// Topic is the shairport-sync base topic; the bridge subscribes to
	// Topic/# and publishes commands to Topic/remote.
	Topic string `yaml:"topic"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Duration wraps time.Duration so YAML values like "5s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full bridge configuration, immutable after Load.
type Config struct {
	MQTT   MQTT   `yaml:"mqtt"`
	Server Server `yaml:"server"`

	// CoverType is the content type reported for cover art whose format
	// cannot be recognized from its magic bytes.
	CoverType string `yaml:"cover_type"`

	// PublishTimeout bounds how long a control publish may block on the bus.
	PublishTimeout Duration `yaml:"publish_timeout"`
}

// Load reads and validates the config file. A missing file yields the
// defaults; a present but invalid file is an error. Validation failures are
// fatal to startup by design: a bridge with a bad broker address has nothing
// useful to do.
func Load(path string) (Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	cfg := Config{
		MQTT: MQTT{
			Host:     defaultBrokerHost,
			Port:     defaultBrokerPort,
			ClientID: defaultClientID,
			Topic:    defaultTopic,
		},
		Server: Server{
			Host: defaultListenHost,
			Port: defaultListenPort,
		},
		CoverType:      defaultCoverType,
		PublishTimeout: Duration(defaultPublishTimeout),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.MQTT.Host = strings.TrimSpace(cfg.MQTT.Host)
	cfg.MQTT.Topic = strings.Trim(strings.TrimSpace(cfg.MQTT.Topic), "/")
	cfg.CoverType = strings.TrimSpace(cfg.CoverType)
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = defaultClientID
	}
	if cfg.CoverType == "" {
		cfg.CoverType = defaultCoverType
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = Duration(defaultPublishTimeout)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MQTT.Host == "" {
		return errors.New("mqtt.host must not be empty")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port)
	}
	if c.MQTT.Topic == "" {
		return errors.New("mqtt.topic must not be empty")
	}
	if strings.ContainsAny(c.MQTT.Topic, "#+") {
		return fmt.Errorf("mqtt.topic %q must not contain wildcards", c.MQTT.Topic)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// BrokerURL returns the broker address in the form paho expects.
func (c Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Host, c.MQTT.Port)
}

// ListenAddr returns the HTTP listen address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CommandTopic returns the shairport remote-control topic.
func (c Config) CommandTopic() string {
	return c.MQTT.Topic + "/remote"
}
