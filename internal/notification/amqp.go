package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes messages to a topic exchange using the message kind
// as routing key, so a review queue can bind to transaction.needs_review.
type AMQPNotifier struct {
	ch       Channel
	exchange string
	timeout  time.Duration
}

// NewAMQPNotifier builds a publisher on an already declared exchange.
func NewAMQPNotifier(ch Channel, exchange string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange, timeout: 5 * time.Second}
}

// Send publishes the message as persistent JSON.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.ch.PublishWithContext(ctx, n.exchange, message.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    message.Reference + ":" + message.Kind,
		Timestamp:    message.OccurredAt,
		Type:         message.Kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", message.Kind, err)
	}
	return nil
}
