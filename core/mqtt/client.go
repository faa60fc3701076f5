// Package mqtt defines the broker connection used by roaming hub adapters
// and by the EVSE status feed.
package mqtt

import "context"

// Handler receives the messages of a subscription.
type Handler func(topic string, payload []byte)

// Client publishes to and subscribes on an MQTT broker.
type Client interface {
	// Publish sends payload to topic, retrying on transient failures.
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers h for topic. Subscriptions survive reconnects.
	Subscribe(topic string, qos byte, h Handler) error

	// Unsubscribe removes the subscriptions for the given topics.
	Unsubscribe(topics ...string) error
}
