package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ignite/textdispatch/internal/domain"
	"github.com/ignite/textdispatch/internal/pkg/logger"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("event publisher closed")

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes send results to a topic exchange.
type AMQPPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         Channel
	exchange   string
	routingKey string
	now        func() time.Time
	closed     bool
}

// DialAMQP connects to the broker, declares the topic exchange and returns a
// publisher bound to it.
func DialAMQP(url, exchange, routingKey string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := NewAMQPPublisher(ch, exchange, routingKey)
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher wraps an already-open channel.
func NewAMQPPublisher(ch Channel, exchange, routingKey string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, routingKey: routingKey, now: time.Now}
}

// PublishResult implements sending.ResultPublisher.
func (p *AMQPPublisher) PublishResult(ctx context.Context, batchID string, r domain.SendResult) error {
	env := NewResultEnvelope(batchID, r, p.now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.Meta.ID,
		Timestamp:    env.Meta.Time,
		Type:         ResultEventType,
		Body:         body,
	}
	if env.Meta.CorrelationID != nil {
		msg.CorrelationId = *env.Meta.CorrelationID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ResultEventType, err)
	}
	logger.Debug("result event published", "batch_id", batchID, "phone", r.Phone, "status", string(r.Status))
	return nil
}

// Close closes the channel and, when owned, the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NopPublisher discards results. Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) PublishResult(context.Context, string, domain.SendResult) error { return nil }
