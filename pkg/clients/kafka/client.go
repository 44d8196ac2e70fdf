// Package kafka publishes device payloads to a Kafka topic through watermill.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/devsim/pkg/models"
)

const (
	// DefaultTopic is used when the connection names neither endpoint nor topic.
	DefaultTopic = "devices.data"

	defaultPort = 9092
)

// PublisherFactory opens a publisher for the given brokers.
type PublisherFactory func(brokers []string, logger watermill.LoggerAdapter) (message.Publisher, error)

// Client sends payloads to a single topic. A publisher is opened per send.
type Client struct {
	brokers      []string
	topic        string
	logger       *slog.Logger
	newPublisher PublisherFactory
}

// New builds a client for the given connection.
func New(conn *models.Connection, logger *slog.Logger) (*Client, error) {
	return NewWithPublisherFactory(conn, logger, NewSaramaPublisher)
}

// NewWithPublisherFactory lets callers swap the transport.
func NewWithPublisherFactory(conn *models.Connection, logger *slog.Logger, factory PublisherFactory) (*Client, error) {
	topic := conn.Endpoint
	if topic == "" {
		topic = conn.ConfigString("topic", DefaultTopic)
	}

	return &Client{
		brokers:      Brokers(conn),
		topic:        topic,
		logger:       logger.With("module", "kafka_client", "connection_id", conn.ID),
		newPublisher: factory,
	}, nil
}

// Brokers returns host:port plus any extra brokers listed in config["brokers"].
func Brokers(conn *models.Connection) []string {
	port := conn.Port
	if port == 0 {
		port = defaultPort
	}

	brokers := []string{conn.Host + ":" + strconv.Itoa(port)}

	if extra := conn.ConfigString("brokers", ""); extra != "" {
		for _, broker := range strings.Split(extra, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return brokers
}

// NewSaramaPublisher creates a synchronous watermill-kafka publisher.
func NewSaramaPublisher(brokers []string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	saramaPublisherConfig.Producer.RequiredAcks = sarama.WaitForLocal

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return publisher, nil
}

// Send publishes the payload as one message.
func (c *Client) Send(ctx context.Context, payload []byte) (bool, string) {
	publisher, err := c.newPublisher(c.brokers, watermill.NewSlogLogger(c.logger))
	if err != nil {
		c.logger.WarnContext(ctx, "Kafka publisher unavailable", "brokers", c.brokers, "error", err)

		return false, fmt.Sprintf("failed to create kafka publisher: %v", err)
	}

	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close kafka publisher", "error", closeErr)
		}
	}()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := publisher.Publish(c.topic, msg); err != nil {
		return false, fmt.Sprintf("failed to publish to topic %s: %v", c.topic, err)
	}

	return true, "Published to topic " + c.topic
}
