// Package rabbitmq publishes session outcomes to RabbitMQ for back-office
// consumers.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

const (
	// TopicSessionsCompleted receives sessions that reached DONE.
	TopicSessionsCompleted = "rfq.sessions.completed"
	// TopicSessionsFailed receives sessions that reached ERROR.
	TopicSessionsFailed = "rfq.sessions.failed"
)

// Channel is the publish subset of *amqp.Channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes final session snapshots to RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel Channel
	logger  *zap.Logger
}

// Dial connects to RabbitMQ and opens a channel.
func Dial(url string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := NewPublisher(channel, logger)
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, logger *zap.Logger) *Publisher {
	return &Publisher{channel: ch, logger: logger}
}

// HandleSessionEvent publishes events entering DONE or ERROR; others are ignored.
func (p *Publisher) HandleSessionEvent(ctx context.Context, ev model.SessionEvent) error {
	if !ev.Final() {
		return nil
	}

	key := TopicSessionsCompleted
	priority := uint8(0)
	if ev.To == model.StateError {
		key = TopicSessionsFailed
		priority = 5
	}

	body, err := json.Marshal(ev.Snapshot)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.String("session_id", ev.SessionID), zap.Error(err))
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		"",    // exchange
		key,   // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: ev.SessionID,
			MessageId:     ev.ID.String(),
			Timestamp:     ev.Timestamp,
			Priority:      priority,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("routing_key", key),
			zap.String("session_id", ev.SessionID),
			zap.Error(err))
		metrics.IncError("rabbitmq", "publish_failed")
		return err
	}

	p.logger.Info("rabbitmq.session_published",
		zap.String("routing_key", key),
		zap.String("session_id", ev.SessionID))
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
