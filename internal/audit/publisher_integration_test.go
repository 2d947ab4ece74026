//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"tqhub/internal/audit"
	"tqhub/internal/platform/logger"
	"tqhub/pkg/testutil/containers"
)

func TestKafkaPublisherDelivers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	kafka := containers.NewKafkaContainer(t)
	kafka.CreateTopic(t, "tqhub.session.audit")

	pub, err := audit.NewKafkaPublisher(audit.KafkaConfig{
		Brokers:         kafka.Broker,
		Topic:           "tqhub.session.audit",
		DeliveryTimeout: 10 * time.Second,
	}, logger.Discard())
	require.NoError(t, err)
	defer pub.Close()

	event := audit.Event{
		Action:    audit.ActionLogin,
		TenantID:  7,
		UserEmail: "a@x.com",
	}
	require.NoError(t, pub.Emit(context.Background(), event))
	require.NoError(t, pub.Flush(10*time.Second))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(kafka.Broker),
		kgo.ConsumeTopics("tqhub.session.audit"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, []byte("7"), records[0].Key)

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, audit.ActionLogin, got.Action)
	require.Equal(t, "a@x.com", got.UserEmail)
	require.NotEmpty(t, got.ID)
	require.False(t, got.Timestamp.IsZero())
}
