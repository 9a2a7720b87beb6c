//go:build integration

package events_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/eslsoft/lingoledger/internal/adapter/catalog"
	"github.com/eslsoft/lingoledger/internal/adapter/events"
	"github.com/eslsoft/lingoledger/internal/adapter/repository"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
	"github.com/eslsoft/lingoledger/internal/usecase"
)

func setupRabbitMQ(t *testing.T) string {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return amqpURL
}

func TestIntegration_ConsumerProvisionsAndActivates(t *testing.T) {
	amqpURL := setupRabbitMQ(t)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "events.db")+"?_fk=1")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat, _ := catalog.New(nil)
	ledgers := usecase.NewLedgerUsecase(repository.NewLedgerRepository(db, logger), cat, logger)

	conn, err := events.Dial(amqpURL, logger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	consumer := events.NewConsumer(conn, ledgers, events.ConsumerConfig{Workers: 1}, logger)
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start consumer: %v", err)
	}
	t.Cleanup(consumer.Stop)

	publisher := events.NewPublisher(conn)
	for _, msg := range []events.Message{
		{Type: events.TypeUserCreated, UserID: "auth0|it"},
		{Type: events.TypeUserCreated, UserID: "auth0|it"},
		{Type: events.TypeSubscriptionActivated, UserID: "auth0|it"},
	} {
		if _, err := publisher.Publish(ctx, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
		// Activation must not race ahead of provisioning on the other queue.
		time.Sleep(500 * time.Millisecond)
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		ledger, err := ledgers.GetLedger(ctx, "auth0|it")
		if err == nil && ledger.HasUnlimitedHearts {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("ledger was not provisioned and upgraded in time")
}

func TestIntegration_EarlyActivationIsDeadLettered(t *testing.T) {
	amqpURL := setupRabbitMQ(t)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "early.db")+"?_fk=1")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat, _ := catalog.New(nil)
	ledgers := usecase.NewLedgerUsecase(repository.NewLedgerRepository(db, logger), cat, logger)

	conn, err := events.Dial(amqpURL, logger)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	consumer := events.NewConsumer(conn, ledgers, events.ConsumerConfig{Workers: 1}, logger)
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start consumer: %v", err)
	}
	t.Cleanup(consumer.Stop)

	publisher := events.NewPublisher(conn)
	sent, err := publisher.Publish(ctx, events.Message{Type: events.TypeSubscriptionActivated, UserID: "auth0|early"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	ch, err := conn.NewChannel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	t.Cleanup(func() { ch.Close() })

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		delivery, ok, err := ch.Get(events.DeadLetterQueueName, true)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			if delivery.MessageId != sent.ID.String() {
				t.Fatalf("expected parked message %s, got %s", sent.ID, delivery.MessageId)
			}
			if delivery.RoutingKey != events.PaymentsQueueName {
				t.Fatalf("expected routing key %s, got %s", events.PaymentsQueueName, delivery.RoutingKey)
			}
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("early activation was not dead-lettered in time")
}
