package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Connection owns the RabbitMQ connection and a channel used for publishing
// and queue setup.
type Connection struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  logrus.FieldLogger
	mu      sync.RWMutex
}

// Dial connects to RabbitMQ and declares the ledger queues.
func Dial(rawURL string, logger logrus.FieldLogger) (*Connection, error) {
	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	c := &Connection{url: rawURL, conn: conn, channel: ch, logger: logger}
	if err := c.declareQueues(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	logger.WithField("host", redactURL(rawURL)).Info("connected to RabbitMQ")
	return c, nil
}

func (c *Connection) declareQueues(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		DeadLetterExchangeName,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", DeadLetterExchangeName, err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", DeadLetterQueueName, err)
	}
	if err := ch.QueueBind(DeadLetterQueueName, "", DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", DeadLetterQueueName, err)
	}

	for _, name := range []string{IdentityQueueName, PaymentsQueueName} {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			queueArgs(name),
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}
	return nil
}

// queueArgs returns the declaration arguments of a provider queue. A rejected
// delivery keeps its original routing key when dead-lettered, so a parked
// message can be replayed onto the queue it came from.
func queueArgs(name string) amqp.Table {
	switch name {
	case IdentityQueueName, PaymentsQueueName:
		return amqp.Table{"x-dead-letter-exchange": DeadLetterExchangeName}
	default:
		return nil
	}
}

// NewChannel opens a dedicated channel, one per consumer.
func (c *Connection) NewChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// Channel returns the shared publishing channel.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Publisher emits provider events. Operators use it to replay events and
// tests use it to drive the consumer.
type Publisher struct {
	conn  *Connection
	clock func() time.Time
}

func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{conn: conn, clock: time.Now}
}

// Publish fills in the id and timestamp when missing and routes the message
// to the queue for its type.
func (p *Publisher) Publish(ctx context.Context, msg Message) (Message, error) {
	queue, ok := QueueFor(msg.Type)
	if !ok {
		return msg, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = p.clock().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("failed to marshal message: %w", err)
	}
	err = p.conn.Channel().PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID.String(),
			Timestamp:    msg.OccurredAt,
			Type:         msg.Type,
			Body:         body,
		},
	)
	if err != nil {
		return msg, fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return msg, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Host
}
