// Package events publishes bill lifecycle events to a message broker.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/cart-billing/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	TypeBillCreated           = "bill.created"
	TypeBillCheckoutStarted   = "bill.checkout_started"
	TypeBillPaid              = "bill.paid"
	TypeBillCheckoutCancelled = "bill.checkout_cancelled"
)

type Event struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	BillID    int64          `json:"bill_id"`
	UserID    int64          `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func NewEvent(eventType string, billID, userID int64, payload map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		BillID:    billID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

// Key partitions events so one bill's events stay ordered.
func (e Event) Key() string {
	return fmt.Sprintf("bill-%d", e.BillID)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New builds the publisher selected by cfg.Driver.
func New(cfg config.EventsConfig, logger logrus.FieldLogger) (Publisher, error) {
	switch cfg.Driver {
	case config.EventsDriverKafka:
		logger.WithField("brokers", cfg.KafkaBrokers).Info("publishing events to kafka")
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic), nil
	case config.EventsDriverRabbitMQ:
		logger.WithField("exchange", cfg.Topic).Info("publishing events to rabbitmq")
		p, err := DialAMQP(cfg.AMQPURL, cfg.Topic, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.EventsDriverNone, "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
