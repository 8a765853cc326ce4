// Package messaging provides a NATS client wrapper for the pipeline's two
// messaging concerns: the description ticket queue consumed by the describer
// workers, and the status-notification fanout consumed by gateway instances
// hosting WebSocket clients.
package messaging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across services.
const (
	SubjectDescribeTickets = "tickets.describe"
	SubjectNotify          = "notify" // + .<connection_id> or .broadcast

	// BroadcastToken is the notify subject suffix addressing every client.
	BroadcastToken = "broadcast"

	// describeQueueGroup distributes ticket delivery across describer
	// instances; each queued ticket is handled by exactly one member.
	describeQueueGroup = "describers"
)

// Client wraps the NATS connection with helper methods for the ticket queue
// and notification fanout.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "seesay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{conn: nc}, nil
}

// PublishTicket puts a serialized description ticket on the queue.
func (c *Client) PublishTicket(data []byte) error {
	if err := c.conn.Publish(SubjectDescribeTickets, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", SubjectDescribeTickets, err)
	}
	return nil
}

// SubscribeTickets registers a queue-group handler for description tickets.
// Delivery is distributed across subscribers in the group; redelivery
// semantics are whatever the transport provides.
func (c *Client) SubscribeTickets(handler func(data []byte)) error {
	sub, err := c.conn.QueueSubscribe(SubjectDescribeTickets, describeQueueGroup, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectDescribeTickets, err)
	}
	c.track(sub)
	return nil
}

// PublishNotify publishes a status event addressed to one connection, or to
// every client when connectionID is empty.
func (c *Client) PublishNotify(connectionID string, data []byte) error {
	subject := SubjectNotify + "." + BroadcastToken
	if connectionID != "" {
		subject = SubjectNotify + "." + connectionID
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeNotify subscribes to all status events. The handler receives the
// target connection ID ("" for broadcast) and the raw event payload. Every
// gateway instance subscribes; each routes events to its own local clients.
func (c *Client) SubscribeNotify(handler func(connectionID string, data []byte)) error {
	subject := SubjectNotify + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		target := strings.TrimPrefix(msg.Subject, SubjectNotify+".")
		if target == BroadcastToken {
			target = ""
		}
		handler(target, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.track(sub)
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", sub.Subject, err)
		}
	}
	c.subs = nil

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

func (c *Client) track(sub *nats.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}
