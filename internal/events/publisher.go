package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Envelope is the audit record published for every delivered realtime event.
type Envelope struct {
	Event       string    `json:"event"`
	ContainerID int64     `json:"container_id,omitempty"`
	IdentityID  int64     `json:"identity_id,omitempty"`
	Sessions    int       `json:"sessions"`
	At          time.Time `json:"at"`
}

// Publisher publishes realtime event audit records.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, envelope Envelope) error
	// Mode reports the active backend, "amqp" or "noop".
	Mode() string
	Close() error
}

// NewPublisher builds an AMQP publisher, or a noop publisher when AMQP is
// disabled or unreachable. Event delivery never depends on the broker.
func NewPublisher(amqpURL, exchange string, logger *zerolog.Logger) Publisher {
	if amqpURL == "" {
		logger.Info().Msg("amqp disabled, using noop publisher")
		return noopPublisher{}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, using noop publisher")
		return noopPublisher{}
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("amqp channel failed, using noop publisher")
		_ = conn.Close()
		return noopPublisher{}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Warn().Err(err).Msg("amqp exchange declare failed, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{}
	}

	logger.Info().Str("exchange", exchange).Msg("amqp publisher connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zerolog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("routing_key", routingKey).Msg("amqp publish failed")
	}
	return err
}

func (p *amqpPublisher) Mode() string { return "amqp" }

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, Envelope) error { return nil }

func (noopPublisher) Mode() string { return "noop" }

func (noopPublisher) Close() error { return nil }
