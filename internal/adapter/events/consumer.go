package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/entity"
)

// LedgerService is the part of the ledger usecase the consumer drives.
type LedgerService interface {
	Provision(ctx context.Context, userID string) (*entity.Ledger, bool, error)
	ActivateSubscription(ctx context.Context, userID string) (*entity.Ledger, error)
}

// outcome decides how a delivery is settled.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeReject
	outcomeRequeue
)

func (o outcome) String() string {
	switch o {
	case outcomeAck:
		return "ack"
	case outcomeReject:
		return "reject"
	default:
		return "requeue"
	}
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // workers per queue
	Prefetch int // unacknowledged deliveries per channel
	Timeout  time.Duration
}

// Consumer applies identity and payment events to ledgers.
type Consumer struct {
	conn       *Connection
	ledgers    LedgerService
	logger     logrus.FieldLogger
	cfg        ConsumerConfig
	channels   []*amqp.Channel
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

func NewConsumer(conn *Connection, ledgers LedgerService, cfg ConsumerConfig, logger logrus.FieldLogger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Consumer{conn: conn, ledgers: ledgers, logger: logger, cfg: cfg}
}

// Start begins consuming both queues. Deliveries are acknowledged manually.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	for _, queue := range []string{IdentityQueueName, PaymentsQueueName} {
		ch, err := c.conn.NewChannel()
		if err != nil {
			return err
		}
		c.channels = append(c.channels, ch)
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS on %s: %w", queue, err)
		}
		msgs, err := ch.Consume(
			queue,
			"",    // consumer tag (auto-generated)
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", queue, err)
		}
		for i := 0; i < c.cfg.Workers; i++ {
			c.wg.Add(1)
			go c.worker(ctx, queue, msgs)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"workers":  c.cfg.Workers,
		"prefetch": c.cfg.Prefetch,
	}).Info("event consumer started")
	return nil
}

func (c *Consumer) worker(ctx context.Context, queue string, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.WithField("queue", queue).Info("delivery channel closed")
				return
			}
			c.settle(msg, c.dispatch(ctx, msg.Body))
		}
	}
}

func (c *Consumer) settle(msg amqp.Delivery, result outcome) {
	var err error
	switch result {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeReject:
		err = msg.Reject(false)
	default:
		err = msg.Nack(false, true)
	}
	if err != nil {
		c.logger.WithError(err).WithField("outcome", result.String()).Error("failed to settle delivery")
	}
}

// dispatch applies one message body and reports how to settle it. Malformed
// or unknown messages are dropped; store failures are redelivered.
func (c *Consumer) dispatch(ctx context.Context, body []byte) outcome {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.WithError(err).Warn("dropping malformed event")
		return outcomeReject
	}
	log := c.logger.WithFields(logrus.Fields{
		"event_id": msg.ID.String(),
		"type":     msg.Type,
		"user_id":  msg.UserID,
	})

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var err error
	switch msg.Type {
	case TypeUserCreated:
		_, _, err = c.ledgers.Provision(ctx, msg.UserID)
	case TypeSubscriptionActivated:
		_, err = c.ledgers.ActivateSubscription(ctx, msg.UserID)
	default:
		log.Warn("dropping event of unknown type")
		return outcomeReject
	}

	switch {
	case err == nil:
		log.Debug("event applied")
		return outcomeAck
	case errors.Is(err, entity.ErrInvalidUserID), errors.Is(err, entity.ErrUnknownUser):
		log.WithError(err).Warn("rejecting event to the dead-letter queue")
		return outcomeReject
	default:
		log.WithError(err).Error("event failed, requeueing")
		return outcomeRequeue
	}
}

// Stop cancels the workers and waits for in-flight deliveries.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	for _, ch := range c.channels {
		_ = ch.Close()
	}
	c.logger.Info("event consumer stopped")
}
