package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/product-studio/internal/services"
)

// PubSubLifecyclePublisher publishes version lifecycle events to a Pub/Sub topic.
type PubSubLifecyclePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.LifecycleEventPublisher = (*PubSubLifecyclePublisher)(nil)

// NewPubSubLifecyclePublisher constructs a Pub/Sub backed lifecycle event publisher. Messages
// are ordered per product when the topic has message ordering enabled.
func NewPubSubLifecyclePublisher(topic *pubsub.Topic) (*PubSubLifecyclePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub lifecycle publisher: topic is required")
	}
	return &PubSubLifecyclePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishLifecycleEvent sends event and waits for the server assigned message id.
func (p *PubSubLifecyclePublisher) PublishLifecycleEvent(ctx context.Context, event services.LifecycleEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub lifecycle publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal lifecycle event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "sessionId", event.SessionID)
	setAttr(attrs, "productId", event.ProductID)
	setAttr(attrs, "versionId", event.VersionID)
	setAttr(attrs, "toStatus", string(event.ToStatus))

	msg := &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = strings.TrimSpace(event.ProductID)
	}
	result := p.topic.Publish(ctx, msg)

	id, err := result.Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			p.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish lifecycle event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
