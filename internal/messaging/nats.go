// Package messaging provides a NATS client wrapper for the broadcast bus.
// The pipeline and moderation controller publish fan-out events here; the
// WebSocket server subscribes and writes them to the admitted sockets. The
// bus keeps state mutation decoupled from socket delivery and is the single
// seam a multi-process deployment would widen.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the chat server.
const (
	// SubjectBroadcastAll carries events for every admitted connection.
	SubjectBroadcastAll = "chat.broadcast.all"

	// SubjectBroadcastAdmins carries events for admin connections only.
	SubjectBroadcastAdmins = "chat.broadcast.admins"
)

// NATSClient wraps the NATS connection with helper methods for the
// broadcast subjects. It implements the chat.Broadcaster interface.
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
		Name:          "chatserver",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
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

// BroadcastAll publishes an event destined for every admitted connection.
func (c *NATSClient) BroadcastAll(payload []byte) error {
	return c.publish(SubjectBroadcastAll, payload)
}

// BroadcastAdmins publishes an event destined for admin connections only.
func (c *NATSClient) BroadcastAdmins(payload []byte) error {
	return c.publish(SubjectBroadcastAdmins, payload)
}

// SubscribeBroadcasts registers the delivery handlers for both broadcast
// subjects. onAll receives events for every connection, onAdmins events for
// admin connections only.
func (c *NATSClient) SubscribeBroadcasts(onAll, onAdmins func(payload []byte)) error {
	if err := c.subscribe(SubjectBroadcastAll, onAll); err != nil {
		return err
	}
	return c.subscribe(SubjectBroadcastAdmins, onAdmins)
}

func (c *NATSClient) publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (c *NATSClient) subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
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
