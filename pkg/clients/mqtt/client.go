// Package mqtt publishes device payloads to an MQTT broker. Each send opens
// its own session: connect, publish, disconnect.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dukex/devsim/pkg/models"
)

const (
	// DefaultTopic is used when the connection names neither endpoint nor topic.
	DefaultTopic = "devices/data"

	defaultPort           = 1883
	defaultQoS            = 1
	defaultKeepAlive      = 60 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds

	maxQoS         = 2
	maxPayloadSize = 1 << 20
	tlsMinVersion  = tls.VersionTLS12
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrInvalidQoS       = errors.New("invalid qos")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum size")
)

var hostPrefixes = []string{"mqtt://", "mqtts://", "tcp://", "ssl://", "ws://", "wss://"}

// Config is the resolved connection configuration for a send.
type Config struct {
	Host      string
	Port      int
	Topic     string
	QoS       byte
	Retain    bool
	TLS       bool
	ClientID  string
	KeepAlive time.Duration
	Username  string
	Password  string
}

// ConfigFromConnection reads the MQTT options out of a connection record.
func ConfigFromConnection(conn *models.Connection) (Config, error) {
	qos := conn.ConfigInt("qos", defaultQoS)
	if qos < 0 || qos > maxQoS {
		return Config{}, fmt.Errorf("%w: %d (must be 0-%d)", ErrInvalidQoS, qos, maxQoS)
	}

	port := conn.Port
	if port == 0 {
		port = defaultPort
	}

	topic := conn.Endpoint
	if topic == "" {
		topic = conn.ConfigString("topic", DefaultTopic)
	}

	return Config{
		Host:      SanitizeHost(conn.Host),
		Port:      port,
		Topic:     topic,
		QoS:       byte(qos),
		Retain:    conn.ConfigBool("retain", false),
		TLS:       conn.ConfigBool("ssl", false),
		ClientID:  conn.ConfigString("client_id", "devsim_"+uuid.NewString()[:8]),
		KeepAlive: time.Duration(conn.ConfigInt("keep_alive", int(defaultKeepAlive/time.Second))) * time.Second,
		Username:  conn.Auth["username"],
		Password:  conn.Auth["password"],
	}, nil
}

// SanitizeHost strips any URL scheme a user pasted into the host field.
func SanitizeHost(host string) string {
	for _, prefix := range hostPrefixes {
		if strings.HasPrefix(host, prefix) {
			return strings.TrimPrefix(host, prefix)
		}
	}

	return host
}

// Client sends payloads to a single broker topic.
type Client struct {
	cfg       Config
	logger    *slog.Logger
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// New builds a client for the given connection.
func New(conn *models.Connection, logger *slog.Logger) (*Client, error) {
	cfg, err := ConfigFromConnection(conn)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:       cfg,
		logger:    logger.With("module", "mqtt_client", "connection_id", conn.ID),
		newClient: pahomqtt.NewClient,
	}, nil
}

// Send connects, publishes the payload and disconnects.
func (c *Client) Send(ctx context.Context, payload []byte) (bool, string) {
	if err := c.publish(ctx, payload); err != nil {
		c.logger.WarnContext(ctx, "MQTT send failed", "topic", c.cfg.Topic, "error", err)

		return false, err.Error()
	}

	return true, "Published to topic " + c.cfg.Topic
}

func (c *Client) publish(ctx context.Context, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	client := c.newClient(c.options())

	token := client.Connect()
	if !waitToken(ctx, token, defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	defer client.Disconnect(disconnectQuiesce)

	token = client.Publish(c.cfg.Topic, c.cfg.QoS, c.cfg.Retain, payload)
	if !waitToken(ctx, token, defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

func (c *Client) options() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if c.cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Host, c.cfg.Port))
	opts.SetClientID(c.cfg.ClientID)
	opts.SetProtocolVersion(4)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(c.cfg.KeepAlive)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	return opts
}

// waitToken waits for the token, the timeout or ctx, whichever comes first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) bool {
	select {
	case <-token.Done():
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}
