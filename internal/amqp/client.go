// Package amqp publishes ledger events and bill-due notifications to
// RabbitMQ. Publishing is fire-and-forget from the ledger's point of view;
// downstream consumers (notifiers, audit sinks) read from the queue.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"saldo/internal/core"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
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

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishMovementEvent announces a committed ledger mutation.
func (c *Client) PublishMovementEvent(ctx context.Context, action string, m core.Movement) error {
	msg := NewMovementEventMessage(action, m)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal movement event: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return fmt.Errorf("publish movement event: %w", err)
	}
	slog.DebugContext(ctx, "Published movement event",
		"action", action,
		"movement_id", m.ID,
		"owner_id", m.OwnerID)
	return nil
}

// PublishBillDue announces that an unpaid reminder has reached its due date.
func (c *Client) PublishBillDue(ctx context.Context, b core.BillReminder) error {
	msg := NewBillDueMessage(b)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal bill due message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return fmt.Errorf("publish bill due message: %w", err)
	}
	slog.DebugContext(ctx, "Published bill due notification",
		"bill_id", b.ID,
		"owner_id", b.OwnerID)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return c.channel.PublishWithContext(publishCtx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

func (c *Client) Close() error {
	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection: %w", err)
		}
	}
	return firstErr
}
