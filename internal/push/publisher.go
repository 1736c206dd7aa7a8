// Package push hands notification jobs to the external delivery worker over
// a durable queue. Delivery to device endpoints (APNs/FCM fan-out, retries,
// token invalidation) is the worker's concern; this side only enqueues.
package push

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Job is the payload consumed by the push worker.
type Job struct {
	RecipientID string            `json:"recipient_id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}

// Publisher implements chat.Notifier on top of an AMQP queue.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	clock func() time.Time
}

// NewPublisher dials the broker and declares the durable notification queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue, clock: time.Now}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Notify enqueues one notification job. The caller treats any error as a
// logged, non-fatal push failure.
func (p *Publisher) Notify(ctx context.Context, recipientID, title, body string, data map[string]string) error {
	payload, err := json.Marshal(Job{
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Data:        data,
		EnqueuedAt:  p.clock().UTC(),
	})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
			Timestamp:    p.clock(),
		},
	)
}
