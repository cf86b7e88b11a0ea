package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	// LotteryEventStream is the JetStream stream holding every lottery domain event
	LotteryEventStream = "lottery_events"

	eventRetention    = 30 * 24 * time.Hour
	duplicateWindow   = 10 * time.Minute
	defaultDialWait   = 5 * time.Second
	consumerAckWait   = 30 * time.Second
	consumerRedeliver = 3
)

// ErrNotConnected is returned by stream operations before Connect succeeds
var ErrNotConnected = errors.New("not connected to NATS JetStream")

// NATSClient wraps a NATS connection with JetStream. Published messages carry
// the event ID as the JetStream message ID so that a retried post-commit flush
// is stored once.
type NATSClient struct {
	servers              string
	nc                   *nats.Conn
	js                   nats.JetStreamContext
	subscriptions        map[string]*nats.Subscription
	mu                   sync.RWMutex
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// NewNATSClient creates a new NATS client
func NewNATSClient(servers string) *NATSClient {
	return &NATSClient{
		servers:              servers,
		subscriptions:        make(map[string]*nats.Subscription),
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: 10,
	}
}

// Connect dials the servers and opens a JetStream context. The dial timeout
// follows the ctx deadline when one is set.
func (c *NATSClient) Connect(ctx context.Context) error {
	dialWait := defaultDialWait
	if deadline, ok := ctx.Deadline(); ok {
		dialWait = time.Until(deadline)
	}

	opts := []nats.Option{
		nats.Name("blocklotto"),
		nats.Timeout(dialWait),
		nats.MaxReconnects(c.maxReconnectAttempts),
		nats.ReconnectWait(c.reconnectDelay),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
				return
			}
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("server", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			entry := log.WithError(err)
			if sub != nil {
				entry = entry.WithField("subject", sub.Subject)
			}
			entry.Error("NATS async error")
		}),
	}

	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc = nc
	c.js = js
	c.mu.Unlock()

	log.WithField("servers", c.servers).Info("Connected to NATS with JetStream")
	return nil
}

func (c *NATSClient) jetStream() (nats.JetStreamContext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// durableName derives a JetStream-safe consumer name from a subject filter
func durableName(prefix, subject string) string {
	replacer := strings.NewReplacer(".", "_", "*", "wildcard", ">", "all")
	return prefix + "-" + replacer.Replace(subject)
}

// Subscribe registers a durable handler for messages on the subject. Handler
// errors NAK the message for redelivery, up to a fixed delivery limit.
func (c *NATSClient) Subscribe(subject, consumerPrefix string, handler func(*nats.Msg) error) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	sub, err := js.Subscribe(
		subject,
		func(msg *nats.Msg) {
			if err := handler(msg); err != nil {
				log.WithFields(log.Fields{
					"subject": msg.Subject,
					"error":   err,
				}).Error("Failed to process message")

				if nakErr := msg.Nak(); nakErr != nil {
					log.WithError(nakErr).Error("Failed to NAK message")
				}
				return
			}

			if ackErr := msg.Ack(); ackErr != nil {
				log.WithError(ackErr).Error("Failed to ACK message")
			}
		},
		nats.Durable(durableName(consumerPrefix, subject)),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(consumerRedeliver),
		nats.AckWait(consumerAckWait),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subscriptions[subject] = sub
	c.mu.Unlock()

	log.WithField("subject", subject).Info("Subscribed to NATS subject")
	return nil
}

// Close drains subscriptions and closes the connection
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.WithFields(log.Fields{
				"subject": subject,
				"error":   err,
			}).Error("Failed to unsubscribe")
		}
	}
	c.subscriptions = make(map[string]*nats.Subscription)

	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
		c.js = nil
		log.Info("NATS connection closed")
	}

	return nil
}

// IsConnected returns true if the client is connected to NATS
func (c *NATSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && c.nc.IsConnected()
}

// EnsureStream creates the event stream, or widens its subjects when an older
// deployment created it with a narrower filter
func (c *NATSClient) EnsureStream(streamName string, subjects []string) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	cfg := &nats.StreamConfig{
		Name:        streamName,
		Subjects:    subjects,
		Retention:   nats.LimitsPolicy,
		MaxAge:      eventRetention,
		Duplicates:  duplicateWindow,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Description: "Lottery lifecycle, draw and settlement events",
	}

	info, err := js.StreamInfo(streamName)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
		log.WithFields(log.Fields{
			"stream":   streamName,
			"subjects": subjects,
		}).Info("Created JetStream stream")
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up stream %s: %w", streamName, err)
	}

	if sameSubjects(info.Config.Subjects, subjects) {
		log.WithField("stream", streamName).Debug("JetStream stream already exists")
		return nil
	}

	if _, err := js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", streamName, err)
	}
	log.WithFields(log.Fields{
		"stream":   streamName,
		"subjects": subjects,
	}).Info("Updated JetStream stream subjects")
	return nil
}

func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
	}
	return true
}

// Publish stores a message on the stream. A non-empty msgID deduplicates
// repeats within the stream's duplicate window.
func (c *NATSClient) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}

	ack, err := js.Publish(subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("Published message to NATS")
	return nil
}
