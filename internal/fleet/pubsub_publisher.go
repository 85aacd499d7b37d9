package fleet

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher is the production EventPublisher, fanning recovery
// events out to a Cloud Pub/Sub topic for durable, cross-service
// delivery. Grounded on the pack's PubSubEventBus connect/create-topic
// pattern.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubPublisher(projectID, topicID string) (*PubSubPublisher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fleet: creating pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("fleet: checking topic existence: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("fleet: creating topic: %w", err)
		}
	}

	return &PubSubPublisher{client: client, topic: topic}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"event_type": topic},
	})
	_, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("fleet: publishing event: %w", err)
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
