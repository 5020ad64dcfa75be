package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"portfolio/pkg/domain"
)

// EventContactSubmitted is the routing key and event type of new contacts.
const EventContactSubmitted = "contact.submitted"

// Notifier announces domain events to the outside world.
type Notifier interface {
	ContactSubmitted(ctx context.Context, c domain.Contact) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) ContactSubmitted(context.Context, domain.Contact) error { return nil }
func (Nop) Close() error                                           { return nil }

// Event is the JSON body published for each notification.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Contact    domain.Contact `json:"contact"`
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQPNotifier publishes events to a durable topic exchange.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	now      func() time.Time
}

func NewAMQPNotifier(cfg AMQPConfig) (*AMQPNotifier, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = "portfolio.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange, now: time.Now}, nil
}

// ContactSubmitted publishes a persistent contact.submitted event.
func (n *AMQPNotifier) ContactSubmitted(ctx context.Context, c domain.Contact) error {
	body, msg, err := NewContactEvent(c, n.now())
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	err = n.ch.PublishWithContext(ctx, n.exchange, EventContactSubmitted, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventContactSubmitted, err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return errors.Join(n.ch.Close(), n.conn.Close())
}

// NewContactEvent builds the event for c and its encoded body.
func NewContactEvent(c domain.Contact, at time.Time) ([]byte, Event, error) {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       EventContactSubmitted,
		OccurredAt: at.UTC(),
		Contact:    c,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, Event{}, fmt.Errorf("encode event: %w", err)
	}
	return body, ev, nil
}
