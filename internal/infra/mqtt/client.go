// Package mqtt provides the bridge's connection to the MQTT broker.
package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/timhodson/shairport-mqtt-web/internal/config"
)

// ErrBusUnavailable indicates a publish attempted while the broker
// connection is down or the bounded wait expired. Subscriptions recover on
// their own through the reconnect loop; a failed publish is not retried.
var ErrBusUnavailable = errors.New("mqtt broker unavailable")

const maxReconnectInterval = 30 * time.Second

// MessageHandler receives every inbound metadata message as the subtopic
// suffix below the base topic plus the raw payload. It is invoked from the
// client's receive goroutine in broker-delivery order; the handler is the
// sole writer of playback state.
type MessageHandler func(subtopic string, payload []byte)

// Client owns the broker connection. It subscribes to the metadata topic
// tree on every (re)connect and publishes transport commands on demand.
type Client struct {
	client         paho.Client
	baseTopic      string
	commandTopic   string
	publishTimeout time.Duration
	handler        MessageHandler
}

// New builds a client for the configured broker. Connect must be called
// before use.
func New(cfg config.Config, handler MessageHandler) *Client {
	c := &Client{
		baseTopic:      cfg.MQTT.Topic,
		commandTopic:   cfg.CommandTopic(),
		publishTimeout: time.Duration(cfg.PublishTimeout),
		handler:        handler,
	}

	clientID := fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		// The state aggregator trusts broker delivery order; handlers
		// must run synchronously, one message at a time.
		SetOrderMatters(true)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetOnConnectHandler(func(pc paho.Client) {
		log.Info().Str("broker", cfg.BrokerURL()).Str("client_id", clientID).Msg("Connected to MQTT broker")
		c.subscribe(pc)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		log.Debug().Msg("MQTT reconnect attempt")
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts the connection. With connect-retry enabled the returned
// token resolves once the first connection succeeds; the call itself never
// fails on an unreachable broker, it keeps retrying in the background.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.WaitTimeout(c.publishTimeout) && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// subscribe (re)establishes the metadata subscription. Called on every
// connect so a broker restart does not silence the bridge.
func (c *Client) subscribe(pc paho.Client) {
	filter := c.baseTopic + "/#"
	token := pc.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("filter", filter).Msg("MQTT subscribe failed")
			return
		}
		log.Info().Str("filter", filter).Msg("Subscribed to metadata topics")
	}()
}

// dispatch strips the base topic prefix and hands the message to the
// metadata handler. Messages outside the base topic are ignored.
func (c *Client) dispatch(topic string, payload []byte) {
	suffix, ok := strings.CutPrefix(topic, c.baseTopic+"/")
	if !ok {
		return
	}
	// Our own outbound commands arrive back through the wildcard
	// subscription; they are not metadata.
	if suffix == "remote" {
		return
	}
	if c.handler != nil {
		c.handler(suffix, payload)
	}
}

// Publish sends one payload to the remote-control topic, waiting at most
// the configured publish timeout. Returns ErrBusUnavailable when the broker
// is unreachable; the caller surfaces that as a server error rather than
// dropping it silently.
func (c *Client) Publish(payload string) error {
	if !c.client.IsConnectionOpen() {
		return ErrBusUnavailable
	}
	token := c.client.Publish(c.commandTopic, 0, false, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("%w: publish timed out after %s", ErrBusUnavailable, c.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	log.Debug().Str("topic", c.commandTopic).Str("payload", payload).Msg("Published command")
	return nil
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker, allowing a short quiesce for in-flight
// work. The auto-reconnect loop stops with it.
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Info().Msg("MQTT client disconnected")
}
