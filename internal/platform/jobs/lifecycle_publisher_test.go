package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/services"
)

func newTestTopic(t *testing.T, ordered bool) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "product-lifecycle")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic.EnableMessageOrdering = ordered
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubLifecyclePublisherPublishesEvent(t *testing.T) {
	srv, topic := newTestTopic(t, false)

	publisher, err := NewPubSubLifecyclePublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubLifecyclePublisher: %v", err)
	}

	event := services.LifecycleEvent{
		ID:                "01HEVENT",
		Type:              services.EventVersionPromoted,
		SessionID:         "01HSESSION",
		ProductID:         "P-1",
		VersionID:         "4.0",
		PreviousVersionID: "3.0",
		ToStatus:          domain.StatusDesign,
		Actor:             "ops@example.com",
		OccurredAt:        time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	if _, err := publisher.PublishLifecycleEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishLifecycleEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.LifecycleEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.VersionID != "4.0" || payload.PreviousVersionID != "3.0" || !payload.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != services.EventVersionPromoted || attrs["productId"] != "P-1" || attrs["toStatus"] != "DESIGN" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["fromStatus"]; ok {
		t.Fatalf("fromStatus attribute should not be present")
	}
	if messages[0].OrderingKey != "" {
		t.Fatalf("expected no ordering key on an unordered topic")
	}
}

func TestPubSubLifecyclePublisherOrdersByProduct(t *testing.T) {
	srv, topic := newTestTopic(t, true)

	publisher, err := NewPubSubLifecyclePublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubLifecyclePublisher: %v", err)
	}
	event := services.LifecycleEvent{ID: "01HEVENT", Type: services.EventStatusChanged, ProductID: " P-1 "}
	if _, err := publisher.PublishLifecycleEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishLifecycleEvent: %v", err)
	}
	if key := srv.Messages()[0].OrderingKey; key != "P-1" {
		t.Fatalf("expected ordering key P-1, got %q", key)
	}
}

func TestNewPubSubLifecyclePublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubLifecyclePublisher(nil); err == nil {
		t.Fatal("expected error without topic")
	}
}
