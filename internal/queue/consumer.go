package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one decoded envelope. A returned error rejects the
// delivery without requeueing it.
type Handler func(ctx context.Context, env Envelope) error

// Consumer reads durable queues and dispatches envelopes to handlers,
// reconnecting with exponential backoff until its context is cancelled.
type Consumer struct {
	url      string
	log      *zap.Logger
	prefetch int
	handlers map[string]Handler
}

func NewConsumer(url string, log *zap.Logger) *Consumer {
	return &Consumer{url: url, log: log.Named("consumer"), prefetch: 50, handlers: map[string]Handler{}}
}

// Handle registers h for queueName. Call before Run.
func (c *Consumer) Handle(queueName string, h Handler) {
	c.handlers[queueName] = h
}

// Run blocks until ctx is cancelled and then returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("consumer: no handlers registered")
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}

	ended := make(chan error, len(c.handlers))
	var wg sync.WaitGroup
	for name, h := range c.handlers {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		deliveries, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		wg.Add(1)
		go func(name string, h Handler) {
			defer wg.Done()
			for d := range deliveries {
				c.deliver(ctx, name, h, d)
			}
			ended <- fmt.Errorf("deliveries of %s closed", name)
		}(name, h)
	}

	select {
	case <-ctx.Done():
		_ = ch.Close()
		wg.Wait()
		return ctx.Err()
	case amqpErr := <-closed:
		return fmt.Errorf("connection closed: %v", amqpErr)
	case err := <-ended:
		return err
	}
}

func (c *Consumer) deliver(ctx context.Context, queueName string, h Handler, d amqp.Delivery) {
	if err := Dispatch(ctx, h, d.Body); err != nil {
		c.log.Error("handle message failed",
			zap.String("queue", queueName), zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Nack(false, false) // no requeue, avoids hot loops on poison messages
		return
	}
	_ = d.Ack(false)
}

// Dispatch decodes body as an Envelope and hands it to h.
func Dispatch(ctx context.Context, h Handler, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return errors.New("envelope without type")
	}
	return h(ctx, env)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
