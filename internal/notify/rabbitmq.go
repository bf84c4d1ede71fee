package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitNotifier publishes messages as JSON to a topic exchange. The routing
// key is the message kind, e.g. "appointment.created".
type RabbitNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
	mu       sync.Mutex
}

func NewRabbitNotifier(url, exchange string, log *zap.Logger) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	log.Info("rabbitmq notifier connected", zap.String("exchange", exchange))
	return &RabbitNotifier{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func (n *RabbitNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.PublishWithContext(ctx, n.exchange, msg.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

func (n *RabbitNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch != nil {
		if err := n.ch.Close(); err != nil {
			n.log.Warn("error closing rabbitmq channel", zap.Error(err))
		}
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
