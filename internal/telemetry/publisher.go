// Package telemetry publishes best-effort copies of accepted flight plans to
// a message queue.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
)

// Queue topology declared at startup.
const (
	ExchangeFlightPlan = "flightplan"
	QueueCargo         = "cargo"
	RoutingKeyCargo    = "cargo"
)

// ErrNoChannel is returned when publishing without an open channel.
var ErrNoChannel = errors.New("telemetry: no open channel")

// Publisher sends one message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error
}

// Message is a payload plus the properties the broker needs.
type Message struct {
	ID          string
	ContentType string
	Body        []byte
}

// AMQPPublisher publishes over a single AMQP 0-9-1 channel.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	log  logging.Logger
}

// Dial connects to url, opens a channel and declares the flight-plan
// topology. Failure here is fatal to the service.
func Dial(url string, log logging.Logger) (*AMQPPublisher, error) {
	log = logging.OrNoop(log).With(logging.Component("telemetry"))

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect message queue: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	log.Info(context.Background(), "message queue ready",
		logging.String("exchange", ExchangeFlightPlan),
		logging.String("queue", QueueCargo),
	)
	return &AMQPPublisher{conn: conn, ch: ch, log: log}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(QueueCargo, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", QueueCargo, err)
	}
	if err := ch.ExchangeDeclare(ExchangeFlightPlan, amqp.ExchangeTopic, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", ExchangeFlightPlan, err)
	}
	if err := ch.QueueBind(QueueCargo, RoutingKeyCargo, ExchangeFlightPlan, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", QueueCargo, err)
	}
	return nil
}

// Publish sends msg on the shared channel.
func (p *AMQPPublisher) Publish(ctx context.Context, exchange, routingKey string, msg Message) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: msg.ContentType,
		MessageId:   msg.ID,
		Body:        msg.Body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
