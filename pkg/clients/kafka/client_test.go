package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/devsim/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// nopClosePublisher keeps the shared gochannel open across sends.
type nopClosePublisher struct {
	message.Publisher
}

func (nopClosePublisher) Close() error { return nil }

func TestBrokers(t *testing.T) {
	conn := &models.Connection{Host: "k1", Config: map[string]any{"brokers": "k2:9093, k3:9094"}}

	assert.Equal(t, []string{"k1:9092", "k2:9093", "k3:9094"}, Brokers(conn))
}

func TestClient_Send(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	defer pubSub.Close()

	var gotBrokers []string

	conn := &models.Connection{ID: "c1", Protocol: models.ProtocolKafka, Host: "kafka", Endpoint: "telemetry"}
	client, err := NewWithPublisherFactory(conn, testLogger(), func(brokers []string, _ watermill.LoggerAdapter) (message.Publisher, error) {
		gotBrokers = brokers

		return nopClosePublisher{pubSub}, nil
	})
	require.NoError(t, err)

	ok, detail := client.Send(context.Background(), []byte(`{"a":1}`))
	require.True(t, ok)
	assert.Equal(t, "Published to topic telemetry", detail)
	assert.Equal(t, []string{"kafka:9092"}, gotBrokers)

	messages, err := pubSub.Subscribe(context.Background(), "telemetry")
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.JSONEq(t, `{"a":1}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message was not published")
	}
}

func TestClient_Send_PublisherError(t *testing.T) {
	conn := &models.Connection{ID: "c1", Host: "kafka"}
	client, err := NewWithPublisherFactory(conn, testLogger(), func([]string, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("no brokers available")
	})
	require.NoError(t, err)

	ok, detail := client.Send(context.Background(), []byte(`{}`))

	assert.False(t, ok)
	assert.Contains(t, detail, "no brokers available")
}
