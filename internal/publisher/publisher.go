// Package publisher emits desk events to NATS JetStream as canonical envelopes.
package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

const (
	SubjectStateChanged = "evt.rfq.state_changed.v1"
	SubjectDone         = "evt.rfq.done.v1"
	SubjectError        = "evt.rfq.error.v1"
	SubjectSpotUpdated  = "evt.spot.updated.v1"
)

// JetStream is the publish subset of nats.JetStreamContext.
type JetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a JetStream context and provides helpers for publishing
// canonical events.
type Publisher struct {
	js      JetStream
	logger  *zap.Logger
	service string
}

// New creates a Publisher on js.
func New(js JetStream, logger *zap.Logger, service string) *Publisher {
	return &Publisher{js: js, logger: logger, service: service}
}

// Connect opens a JetStream context on nc and ensures the events stream exists.
func Connect(nc *nats.Conn, stream string, logger *zap.Logger, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if stream != "" {
		if _, err := js.StreamInfo(stream); err != nil {
			_, err = js.AddStream(&nats.StreamConfig{
				Name:     stream,
				Subjects: []string{"evt.rfq.>", "evt.spot.>"},
				MaxAge:   24 * time.Hour,
			})
			if err != nil {
				return nil, err
			}
			logger.Info("publisher.stream_created", zap.String("stream", stream))
		}
	}
	return New(js, logger, service), nil
}

// PublishEnvelope serializes and publishes a canonical event envelope.
func (p *Publisher) PublishEnvelope(_ context.Context, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", env.Topic),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: env.Topic,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			nats.MsgIdHdr:    []string{env.ID.String()},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, env.Topic)

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", env.Topic),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncNATSMessage(env.Topic, "error")
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", env.Topic),
		zap.String("event_type", env.EventType))
	metrics.IncNATSMessage(env.Topic, "ok")
	return nil
}

// PublishSessionEvent emits state changes and, for DONE or ERROR, the final
// outcome. Events that did not change state (window ticks, selections) are
// not published.
func (p *Publisher) PublishSessionEvent(ctx context.Context, ev model.SessionEvent) error {
	if !ev.Transition() {
		return nil
	}

	env, err := model.NewEnvelope(SubjectStateChanged, "rfq.state_changed", p.service, ev.SessionID, ev)
	if err != nil {
		return err
	}
	if err := p.PublishEnvelope(ctx, env); err != nil {
		return err
	}

	if !ev.Final() {
		return nil
	}
	subject := SubjectDone
	if ev.To == model.StateError {
		subject = SubjectError
	}
	final, err := model.NewEnvelope(subject, "rfq."+strings.ToLower(string(ev.To)), p.service, ev.SessionID, ev.Snapshot)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, final)
}

// PublishSpot emits one oracle observation.
func (p *Publisher) PublishSpot(ctx context.Context, obs model.SpotObservation) error {
	env, err := model.NewEnvelope(SubjectSpotUpdated, "spot.updated", p.service, string(obs.Pair), obs)
	if err != nil {
		return err
	}
	return p.PublishEnvelope(ctx, env)
}
