package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/httpclient"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// HTTPProvider requests quotes from a single LP gateway.
// POST {baseURL}/v1/option-quotes
type HTTPProvider struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

func NewHTTPProvider(logger *zap.Logger, exec *httpclient.Executor, baseURL string) *HTTPProvider {
	return &HTTPProvider{
		logger:  logger,
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *HTTPProvider) RequestQuotes(ctx context.Context, req model.RFQRequest) ([]model.Quote, error) {
	requestID := uuid.NewString()
	p.logger.Info("lp.request_quotes.start",
		zap.String("request_id", requestID),
		zap.String("pair", string(req.Pair)),
		zap.String("notional", req.Notional.String()))

	httpReq, err := httpclient.NewJSONRequest(ctx, http.MethodPost, p.baseURL+"/v1/option-quotes", toWire(requestID, req))
	if err != nil {
		return nil, err
	}

	var resp QuoteResponse
	if err := p.exec.DoJSON(ctx, httpReq, p.exec.Venue(), &resp); err != nil {
		return nil, fmt.Errorf("lp: request quotes: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New("lp: " + resp.Error)
	}

	quotes := fromWire(resp, p.exec.Venue(), time.Now().UTC())
	p.logger.Info("lp.request_quotes.success",
		zap.String("request_id", requestID),
		zap.Int("quotes", len(quotes)))
	return quotes, nil
}
