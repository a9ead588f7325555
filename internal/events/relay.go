package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	queueSize      = 512
	publishTimeout = 5 * time.Second
)

// Publisher publishes envelopes to the bus
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// AMQPPublisher publishes to a durable topic exchange
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

// DialAMQP connects and declares the exchange
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange}, nil
}

// Publish sends one envelope
func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	cid := env.Meta.ID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}
	return ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Transient,
		MessageId:     env.Meta.ID,
		CorrelationId: cid,
		Timestamp:     env.Meta.Time,
		Body:          body,
	})
}

// Close closes the connection
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

type item struct {
	key string
	env Envelope
}

// Relay queues hub broadcasts and publishes them in the background. A full
// queue drops events.
type Relay struct {
	pub      Publisher
	producer string
	queue    chan item
	now      func() time.Time
}

// NewRelay creates a new relay
func NewRelay(pub Publisher, producer string) *Relay {
	return &Relay{pub: pub, producer: producer, queue: make(chan item, queueSize), now: time.Now}
}

// Publish enqueues an encoded hub frame without blocking
func (r *Relay) Publish(_ context.Context, eventType string, data []byte) {
	it := item{key: RoutingKey(eventType), env: NewEnvelope(eventType, r.producer, data, r.now())}
	select {
	case r.queue <- it:
	default:
		log.Warn().Str("event", eventType).Msg("Event relay queue full, dropping event")
	}
}

// Run publishes queued events until ctx is done, then closes the publisher
func (r *Relay) Run(ctx context.Context) {
	defer func() {
		if err := r.pub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-r.queue:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := r.pub.Publish(pctx, it.key, it.env); err != nil {
				log.Error().Err(err).Str("key", it.key).Msg("Failed to publish event")
			} else {
				log.Debug().Str("key", it.key).Msg("Event published")
			}
			cancel()
		}
	}
}
