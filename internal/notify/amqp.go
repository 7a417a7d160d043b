package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes intents onto a queue for an external mailer
// worker to consume. The connection is established lazily and re-dialed
// after a failure.
type AMQPNotifier struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPNotifier configures a publisher for the given queue.
func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = "bookvault.notifications"
	}
	return &AMQPNotifier{url: url, queue: queue}, nil
}

// Send publishes one intent as a persistent JSON message.
func (n *AMQPNotifier) Send(ctx context.Context, intent Intent) error {
	ch, err := n.ensureChannel()
	if err != nil {
		return err
	}
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	err = ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		n.reset()
		return fmt.Errorf("publish intent: %w", err)
	}
	return nil
}

// Close tears down the connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	n.channel = nil
	return err
}

func (n *AMQPNotifier) ensureChannel() (*amqp.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channel != nil {
		return n.channel, nil
	}
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	n.conn = conn
	n.channel = ch
	return ch, nil
}

func (n *AMQPNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
	}
	n.conn = nil
	n.channel = nil
}
