// Package trigger turns messages on a RabbitMQ queue into snapshot refresh requests.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/config"
)

var ErrDeliveriesClosed = errors.New("trigger: delivery channel closed")

// Kicker queues a refresh; it reports false when one is already pending.
type Kicker interface {
	Kick() bool
}

// Message is published by upstream services after they change warehouse data.
type Message struct {
	Event  string `json:"event"`
	Source string `json:"source,omitempty"`
}

func ParseMessage(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("trigger: malformed message: %w", err)
	}
	m.Event = strings.TrimSpace(m.Event)
	if m.Event == "" {
		return Message{}, errors.New("trigger: message has no event")
	}
	return m, nil
}

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.RabbitMQConfig
}

func NewConsumer(cfg config.RabbitMQConfig) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("trigger: failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("trigger: failed to open channel: %w", err)
	}

	if err := channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("trigger: failed to set QoS: %w", err)
	}

	return &Consumer{conn: conn, channel: channel, cfg: cfg}, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Run consumes the refresh queue until ctx is done. It returns ErrDeliveriesClosed
// if the broker closes the channel first.
func (c *Consumer) Run(ctx context.Context, kicker Kicker) error {
	_, err := c.channel.QueueDeclare(
		c.cfg.RefreshQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("trigger: failed to declare queue: %w", err)
	}

	msgs, err := c.channel.ConsumeWithContext(ctx,
		c.cfg.RefreshQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("trigger: failed to register consumer: %w", err)
	}

	log.Info().Str("queue", c.cfg.RefreshQueue).Msg("Refresh trigger consuming")

	return Drain(ctx, msgs, kicker)
}

// Drain handles deliveries until ctx is done or msgs is closed.
func Drain(ctx context.Context, msgs <-chan amqp.Delivery, kicker Kicker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			handleDelivery(d, kicker)
		}
	}
}

// Malformed messages are acknowledged and dropped; redelivering them cannot help.
func handleDelivery(d amqp.Delivery, kicker Kicker) {
	msg, err := ParseMessage(d.Body)
	if err != nil {
		log.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("Dropping refresh trigger")
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("trigger: failed to ack message")
		}
		return
	}

	queued := kicker.Kick()
	log.Debug().
		Str("event", msg.Event).
		Str("source", msg.Source).
		Bool("queued", queued).
		Msg("Refresh requested")

	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Msg("trigger: failed to ack message")
	}
}
