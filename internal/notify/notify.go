// Package notify defines the real-time status notification contract used by
// both pipeline phases, and its NATS-backed implementation. Delivery is
// fire-and-forget: the pipeline never blocks on, or branches over, whether a
// client actually received an event.
package notify

import (
	"log"

	"github.com/seesay/image-service/internal/messaging"
	"github.com/seesay/image-service/internal/protocol"
)

// Notifier pushes a typed status event to one hub connection, or to every
// client when connectionID is empty.
type Notifier interface {
	Notify(connectionID, eventType, text string)
}

// NATSNotifier publishes status events on the notify fanout so they reach
// whichever gateway instance hosts the target connection.
type NATSNotifier struct {
	client *messaging.Client
}

// NewNATSNotifier creates a notifier publishing through the given client.
func NewNATSNotifier(client *messaging.Client) *NATSNotifier {
	return &NATSNotifier{client: client}
}

// Notify encodes and publishes the event. Failures are logged and dropped.
func (n *NATSNotifier) Notify(connectionID, eventType, text string) {
	data, err := protocol.EncodeStatusEvent(eventType, text)
	if err != nil {
		log.Printf("[notify] encode %s: %v", eventType, err)
		return
	}
	if err := n.client.PublishNotify(connectionID, data); err != nil {
		log.Printf("[notify] publish %s conn=%s: %v", eventType, connectionID, err)
	}
}
