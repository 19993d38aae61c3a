package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/logging"
)

// ErrBrokerUnavailable is returned by Consume while the broker connection is down
var ErrBrokerUnavailable = errors.New("mqtt broker unavailable")

const mqttRetryInterval = 10 * time.Second

// newMQTTClient is replaced in tests
var newMQTTClient = mqtt.NewClient

// Message is the JSON payload published for each prompt. The automation
// that drives the music service subscribes to the topic.
type Message struct {
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Activity    string    `json:"activity"`
	Mood        string    `json:"mood"`
	Tempo       string    `json:"tempo"`
	Genre       string    `json:"genre"`
	Instruments string    `json:"instruments"`
	Request     string    `json:"request"`
	Prompt      string    `json:"prompt"`
}

// MQTTConsumer publishes prompts to a broker topic
type MQTTConsumer struct {
	client    mqtt.Client
	topic     string
	qos       byte
	timeout   time.Duration
	sessionID string
	now       func() time.Time
	logger    logging.Logger
}

// NewMQTTConsumer connects to cfg.Broker. A broker that cannot be reached
// within cfg.Timeout is not an error: the client keeps retrying in the
// background and Consume fails with ErrBrokerUnavailable until it connects.
func NewMQTTConsumer(cfg config.MQTTConfig, sessionID string) (*MQTTConsumer, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is empty")
	}

	logger := logging.WithFields(logging.Fields{
		"component": "mqtt_consumer",
		"broker":    cfg.Broker,
	})

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, sessionID))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(mqttRetryInterval)
	opts.SetConnectTimeout(cfg.Timeout.Std())
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("Connected to MQTT broker", logging.Fields{"topic": cfg.Topic})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error(err, "MQTT connection lost")
	})

	client := newMQTTClient(opts)
	token := client.Connect()
	switch {
	case !token.WaitTimeout(cfg.Timeout.Std()):
		logger.Warn("MQTT broker not reachable yet, retrying in the background", logging.Fields{
			"retry_interval": mqttRetryInterval.String(),
		})
	case token.Error() != nil:
		logger.Error(token.Error(), "MQTT connect failed, prompts will not be published until it succeeds")
	}

	return NewMQTTConsumerWithClient(client, cfg, sessionID), nil
}

// NewMQTTConsumerWithClient wraps an existing client
func NewMQTTConsumerWithClient(client mqtt.Client, cfg config.MQTTConfig, sessionID string) *MQTTConsumer {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &MQTTConsumer{
		client:    client,
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		timeout:   timeout,
		sessionID: sessionID,
		now:       time.Now,
		logger: logging.WithFields(logging.Fields{
			"component": "mqtt_consumer",
			"topic":     cfg.Topic,
		}),
	}
}

// Consume publishes p and waits for the broker acknowledgement. Prompts are
// not queued while the connection is down.
func (c *MQTTConsumer) Consume(ctx context.Context, p Prompt) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("publishing to %s: %w", c.topic, ErrBrokerUnavailable)
	}

	payload, err := json.Marshal(Message{
		SessionID:   c.sessionID,
		Timestamp:   c.now().UTC(),
		Activity:    p.Activity,
		Mood:        p.Mood,
		Tempo:       p.Tempo,
		Genre:       p.Genre,
		Instruments: p.Instruments,
		Request:     p.Request(),
		Prompt:      p.Text,
	})
	if err != nil {
		return fmt.Errorf("encoding prompt: %w", err)
	}

	token := c.client.Publish(c.topic, c.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", c.topic, ctx.Err())
	case <-time.After(c.timeout):
		return fmt.Errorf("publishing to %s: timed out after %s", c.topic, c.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.topic, err)
	}

	c.logger.Debug("Prompt published", logging.Fields{
		"activity": p.Activity,
		"bytes":    len(payload),
	})
	return nil
}

// Close disconnects, allowing 250ms for in-flight messages
func (c *MQTTConsumer) Close() error {
	c.client.Disconnect(250)
	return nil
}
