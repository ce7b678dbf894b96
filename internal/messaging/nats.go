// Package messaging provides a NATS client wrapper for pub/sub messaging
// across StudyLink services. It handles connection lifecycle, subject-based
// subscriptions, and convenience methods for the partner-connection
// lifecycle and per-user notification channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across StudyLink services.
const (
	SubjectPartnerRequest = "partner.request"
	SubjectPartnerAccept  = "partner.accept"
	SubjectPartnerDecline = "partner.decline"
	SubjectPartnerAll     = "partner.*"
	SubjectNotify         = "notify" // + .<user_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "studylink",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
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

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishPartnerRequest publishes a connection-request lifecycle event.
func (c *NATSClient) PublishPartnerRequest(data []byte) error {
	return c.Publish(SubjectPartnerRequest, data)
}

// PublishPartnerAccept publishes an accept lifecycle event.
func (c *NATSClient) PublishPartnerAccept(data []byte) error {
	return c.Publish(SubjectPartnerAccept, data)
}

// PublishPartnerDecline publishes a decline lifecycle event.
func (c *NATSClient) PublishPartnerDecline(data []byte) error {
	return c.Publish(SubjectPartnerDecline, data)
}

// SubscribePartnerEvents subscribes to all partner lifecycle events
// (request, accept, decline) and passes each message's subject and raw
// data to the handler.
func (c *NATSClient) SubscribePartnerEvents(handler func(subject string, data []byte)) error {
	return c.Subscribe(SubjectPartnerAll, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
}

// PublishNotify publishes a notification payload to a specific user's
// notify.<userID> subject.
func (c *NATSClient) PublishNotify(userID string, data []byte) error {
	return c.Publish(SubjectNotify+"."+userID, data)
}

// SubscribeNotify subscribes to notifications for a specific user. The
// subscription is keyed by connID so multiple sockets for the same user on
// the same server don't overwrite each other.
func (c *NATSClient) SubscribeNotify(userID, connID string, handler func(data []byte)) error {
	subject := SubjectNotify + "." + userID
	key := "notifysub:" + connID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeNotify unsubscribes a connection's notify subscription.
func (c *NATSClient) UnsubscribeNotify(connID string) error {
	return c.unsubscribe("notifysub:" + connID)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subscription key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
