package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
)

const publishTimeout = 3 * time.Second

// RabbitMQConfig selects the broker and queue.
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// RabbitNotifier publishes notifications as persistent JSON messages for the delivery
// service to consume. Publishing failures are logged and dropped.
type RabbitNotifier struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *zap.Logger
}

// NewRabbitNotifier dials the broker and declares a durable queue.
func NewRabbitNotifier(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("notify: declare queue: %w", err)
	}

	return &RabbitNotifier{
		conn:    conn,
		channel: channel,
		queue:   queue,
		logger:  logger,
	}, nil
}

// Notify publishes msg. It never returns an error to the caller.
func (n *RabbitNotifier) Notify(ctx context.Context, msg models.Notification) {
	body, err := json.Marshal(msg)
	if err != nil {
		n.logger.Warn("failed to encode notification", zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	// amqp channels are not safe for concurrent publishing.
	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.channel.PublishWithContext(
		publishCtx,
		"",           // exchange
		n.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         msg.Type,
		},
	)
	if err != nil {
		n.logger.Warn("failed to publish notification",
			zap.Int64("user_id", msg.UserID),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
	}
}

// Close closes the channel and connection.
func (n *RabbitNotifier) Close() error {
	var errs []error
	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: close rabbitmq: %v", errs)
	}
	return nil
}
