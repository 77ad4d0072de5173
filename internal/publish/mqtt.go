// ABOUTME: MQTT publication of stream metadata
// ABOUTME: Publishes each metadata replacement as retained JSON on <topic>/metadata
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
	queueSize      = 4
	qos            = 1
)

// Config holds MQTT configuration
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	Logger   *zerolog.Logger
}

// Payload is the JSON document published for each metadata change
type Payload struct {
	Title   string       `json:"title,omitempty"`
	Artist  string       `json:"artist,omitempty"`
	Tags    metadata.Map `json:"tags"`
	Updated time.Time    `json:"updated"`
}

type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes metadata to a broker
type MQTT struct {
	config Config
	logger zerolog.Logger
	client mqtt.Client
	pub    tokenPublisher
	queue  chan metadata.Map
	now    func() time.Time
}

// New creates a publisher. Call Connect before Run.
func New(config Config) *MQTT {
	if config.ClientID == "" {
		config.ClientID = "resonate-radio-" + uuid.NewString()
	}

	m := newWithPublisher(config, nil)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.logger.Info().Str("broker", config.Broker).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn().Err(err).Str("broker", config.Broker).Msg("Connection to MQTT broker lost")
	})

	m.client = mqtt.NewClient(opts)
	m.pub = m.client
	return m
}

func newWithPublisher(config Config, pub tokenPublisher) *MQTT {
	logger := log.Logger.With().Str("component", "mqtt").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &MQTT{
		config: config,
		logger: logger,
		pub:    pub,
		queue:  make(chan metadata.Map, queueSize),
		now:    time.Now,
	}
}

// Connect dials the broker
func (m *MQTT) Connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	return nil
}

// Disconnect closes the broker connection
func (m *MQTT) Disconnect() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

// Topic returns the metadata topic
func (m *MQTT) Topic() string {
	return m.config.Topic + "/metadata"
}

// Handle queues a metadata map for publication without blocking.
// When the queue is full the oldest pending map is dropped.
func (m *MQTT) Handle(meta metadata.Map) {
	for {
		select {
		case m.queue <- meta:
			return
		default:
		}
		select {
		case <-m.queue:
		default:
		}
	}
}

// Run publishes queued maps until ctx is canceled
func (m *MQTT) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case meta := <-m.queue:
			if err := m.Publish(meta); err != nil {
				m.logger.Warn().Err(err).Str("topic", m.Topic()).Msg("Failed to publish metadata")
			}
		}
	}
}

// Publish sends meta as a retained message and waits for the broker
func (m *MQTT) Publish(meta metadata.Map) error {
	data, err := json.Marshal(Payload{
		Title:   meta.Title(),
		Artist:  meta.Artist(),
		Tags:    meta,
		Updated: m.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	token := m.pub.Publish(m.Topic(), qos, true, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	m.logger.Debug().Str("topic", m.Topic()).Str("title", meta.Title()).Msg("Published metadata")
	return nil
}
