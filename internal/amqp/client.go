// Package amqp carries change notifications over RabbitMQ: the API publishes, the
// worker consumes.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"famfin/internal/events"
	"famfin/internal/logger"
)

const (
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Client publishes and consumes events on a durable direct exchange bound to one queue.
type Client struct {
	url          string
	mu           sync.Mutex
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

var _ events.Publisher = (*Client)(nil)

// NewClient dials the broker and declares the exchange and queue.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on a direct exchange.
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// One unacked message at a time keeps recomputes for a projection ordered per consumer.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Publish sends e as a persistent JSON message.
func (c *Client) Publish(ctx context.Context, e events.Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	}
	send := func() error {
		return c.currentChannel().PublishWithContext(
			ctx,
			c.exchangeName, // exchange
			c.queueName,    // routing key
			false,          // mandatory
			false,          // immediate
			msg,
		)
	}
	if err := sendOrReconnect(send, c.reconnect); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	logger.Named("amqp").Debugw("published event",
		"event_id", e.ID,
		"type", e.Type,
		"exchange", c.exchangeName,
		"queue", c.queueName,
	)
	return nil
}

// Consume delivers messages to h until ctx is cancelled or the channel closes.
func (c *Client) Consume(ctx context.Context, h events.Handler) error {
	msgs, err := c.currentChannel().Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log := logger.Named("amqp")
	log.Infow("started consuming", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			log.Infow("stopping consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			switch dispose(ctx, delivery.Body, h) {
			case ack:
				_ = delivery.Ack(false)
			case requeue:
				_ = delivery.Nack(false, true)
			case reject:
				_ = delivery.Nack(false, false)
			}
		}
	}
}

// Run consumes with reconnection. Connection failures back off exponentially; any
// other error ends the run.
func (c *Client) Run(ctx context.Context, h events.Handler) error {
	log := logger.Named("amqp")
	for attempt := 0; ; {
		err := c.Consume(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		log.Warnw("consumer lost connection, reconnecting", "error", err, "attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.reconnect(); err != nil {
			log.Errorw("reconnect failed", "error", err, "attempt", attempt)
			attempt++
			continue
		}
		attempt = 0
	}
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// reconnect replaces a closed connection. A caller that lost the race finds the
// connection already replaced and returns.
func (c *Client) reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.Close()
	return c.connect()
}

// sendOrReconnect runs send, and when the broker connection is gone reconnects and
// sends once more.
func sendOrReconnect(send, reconnect func() error) error {
	err := send()
	if !isConnectionError(err) {
		return err
	}
	logger.Named("amqp").Warnw("publish lost connection, reconnecting", "error", err)
	if rerr := reconnect(); rerr != nil {
		return errors.Join(err, fmt.Errorf("reconnect: %w", rerr))
	}
	return send()
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

type disposition int

const (
	ack disposition = iota
	requeue
	reject
)

// dispose decides the fate of one delivery: malformed payloads are dropped, handler
// failures are requeued for another attempt.
func dispose(ctx context.Context, body []byte, h events.Handler) disposition {
	log := logger.Named("amqp")

	e, err := events.FromJSON(body)
	if err != nil {
		log.Errorw("failed to decode event, rejecting", "error", err)
		return reject
	}

	if err := h.Handle(ctx, e); err != nil {
		log.Errorw("failed to handle event, requeueing",
			"error", err,
			"event_id", e.ID,
			"type", e.Type,
		)
		return requeue
	}

	log.Debugw("handled event", "event_id", e.ID, "type", e.Type)
	return ack
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
