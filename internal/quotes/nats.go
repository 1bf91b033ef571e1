package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// SubjectPrefix is the per-venue request subject; the venue code is appended.
const SubjectPrefix = "cmd.lp.option_quote_request.v1."

// Requester is the request-reply subset of *nats.Conn.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// NATSProvider fans an RFQ out to every venue adapter and merges the replies.
// Venues that fail or time out are skipped; the call errors only when every
// venue fails.
type NATSProvider struct {
	logger  *zap.Logger
	nc      Requester
	venues  []string
	service string
}

func NewNATSProvider(logger *zap.Logger, nc Requester, venues []string, service string) *NATSProvider {
	return &NATSProvider{logger: logger, nc: nc, venues: venues, service: service}
}

func (p *NATSProvider) RequestQuotes(ctx context.Context, req model.RFQRequest) ([]model.Quote, error) {
	if len(p.venues) == 0 {
		return nil, errors.New("lp: no venues configured")
	}

	requestID := uuid.NewString()
	data, err := json.Marshal(toWire(requestID, req))
	if err != nil {
		return nil, err
	}

	type result struct {
		quotes []model.Quote
		err    error
	}
	results := make([]result, len(p.venues))

	var wg sync.WaitGroup
	for i, venue := range p.venues {
		wg.Add(1)
		go func(i int, venue string) {
			defer wg.Done()
			q, err := p.ask(ctx, venue, requestID, data)
			results[i] = result{quotes: q, err: err}
		}(i, venue)
	}
	wg.Wait()

	var merged []model.Quote
	var errs []error
	for i, r := range results {
		if r.err != nil {
			p.logger.Warn("lp.venue_failed",
				zap.String("venue", p.venues[i]),
				zap.String("request_id", requestID),
				zap.Error(r.err))
			errs = append(errs, r.err)
			continue
		}
		merged = append(merged, r.quotes...)
	}
	if len(errs) == len(p.venues) {
		return nil, fmt.Errorf("lp: all venues failed: %w", errors.Join(errs...))
	}
	if merged == nil {
		merged = []model.Quote{}
	}
	return merged, nil
}

func (p *NATSProvider) ask(ctx context.Context, venue, requestID string, data []byte) ([]model.Quote, error) {
	subject := SubjectPrefix + strings.ToUpper(venue)
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"correlation_id": []string{requestID},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	start := time.Now()
	reply, err := p.nc.RequestMsgWithContext(ctx, msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)
	if err != nil {
		metrics.IncNATSMessage(subject, "error")
		return nil, fmt.Errorf("%s: %w", venue, err)
	}
	metrics.IncNATSMessage(subject, "ok")

	var resp QuoteResponse
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode reply: %w", venue, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: %s", venue, resp.Error)
	}
	return fromWire(resp, venue, time.Now().UTC()), nil
}
