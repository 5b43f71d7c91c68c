package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/illmade-knight/go-event-gateway/pkg/publisher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// setupTestPubsub creates a mock Pub/Sub server, client, topic, and
// subscription for testing.
func setupTestPubsub(t *testing.T, projectID, topicID, subID string) (*pubsub.Client, *pubsub.Subscription) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)

	sub, err := client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	return client, sub
}

func TestPubSubPublisher_PublishAndReceive(t *testing.T) {
	testCtx, testCancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(testCancel)

	client, subscription := setupTestPubsub(t, "proj-test", "prod-topic", "sub-test")

	p, err := publisher.NewPubSubPublisher(&publisher.PubSubConfig{AckTimeout: 5 * time.Second}, client, zerolog.Nop())
	require.NoError(t, err)

	event := &model.Event{
		ID:        uuid.New(),
		EventType: "user.click",
		Metadata:  map[string]string{"user_id": "u42"},
		Data:      model.NewJSONData(map[string]any{"name": "x"}),
	}

	require.NoError(t, p.PublishOne(testCtx, "prod-topic", event))

	var mu sync.Mutex
	var receivedMsg *pubsub.Message

	receiveCtx, receiveCancel := context.WithCancel(testCtx)
	t.Cleanup(receiveCancel)

	go func() {
		err := subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			mu.Lock()
			receivedMsg = msg
			mu.Unlock()
			msg.Ack()
			receiveCancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("receive error: %v", err)
		}
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return receivedMsg != nil
	}, 5*time.Second, 50*time.Millisecond, "did not receive message from subscription")

	// The message data is the event's canonical JSON; metadata travels as
	// attributes.
	expected, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(receivedMsg.Data))
	assert.Equal(t, "u42", receivedMsg.Attributes["user_id"])

	require.NoError(t, p.Close())
}

func TestPubSubPublisher_RequiresClient(t *testing.T) {
	_, err := publisher.NewPubSubPublisher(&publisher.PubSubConfig{}, nil, zerolog.Nop())
	require.Error(t, err)
}
