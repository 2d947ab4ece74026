//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer wraps a Redpanda instance exposing the Kafka API.
type KafkaContainer struct {
	Container testcontainers.Container
	Broker    string
}

// NewKafkaContainer starts a Redpanda container and returns its broker address.
func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "redpandadata/redpanda:v24.1.7")
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redpanda broker: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	return &KafkaContainer{Container: container, Broker: broker}
}

// CreateTopic provisions a topic ahead of the test using the admin client.
func (k *KafkaContainer) CreateTopic(t *testing.T, topic string) {
	t.Helper()

	client, err := kgo.NewClient(kgo.SeedBrokers(k.Broker))
	if err != nil {
		t.Fatalf("failed to build kafka admin client: %v", err)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(context.Background(), 1, 1, nil, topic); err != nil {
		t.Fatalf("failed to create topic %q: %v", topic, err)
	}
}
