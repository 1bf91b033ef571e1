package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/httpclient"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// ErrTradeRejected is returned when the venue reports a failed or cancelled
// transaction.
var ErrTradeRejected = errors.New("trade rejected by venue")

// Venue transaction statuses.
const (
	venuePending   = "PENDING"
	venueSettled   = "SETTLED"
	venueFailed    = "FAILED"
	venueCancelled = "CANCELLED"
)

type venueTransaction struct {
	ID        string `json:"id"`
	QuoteID   string `json:"quoteId"`
	Status    string `json:"status"`
	SettledAt string `json:"settledAt,omitempty"`
}

type executeResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message,omitempty"`
	Transaction venueTransaction `json:"transaction"`
}

type transactionResponse struct {
	Success     bool             `json:"success"`
	Transaction venueTransaction `json:"transaction"`
}

type venueErrorResponse struct {
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
	Message string `json:"message,omitempty"`
}

// NormalizeStatus maps a venue transaction status to the desk's vocabulary.
func NormalizeStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case venueSettled:
		return StatusFilled
	case venueFailed:
		return "rejected"
	case venueCancelled:
		return "cancelled"
	case venuePending:
		return "pending"
	default:
		return strings.ToLower(status)
	}
}

// VenueExecutor executes quotes against an external venue API.
//
//	Sign:    POST /v1/customer/quotes/{quoteId}/execute
//	Confirm: GET  /v1/customer/transactions/{transactionId}, polled until terminal
type VenueExecutor struct {
	logger      *zap.Logger
	exec        *httpclient.Executor
	signExec    *httpclient.Executor
	baseURL     string
	apiKey      string
	confirmWait time.Duration
	newBackOff  func() backoff.BackOff
}

// NewVenueExecutor builds an executor whose Confirm polls for at most confirmWait.
func NewVenueExecutor(logger *zap.Logger, rateExec *httpclient.Executor, baseURL, apiKey string, confirmWait time.Duration) *VenueExecutor {
	v := &VenueExecutor{
		logger:      logger,
		exec:        rateExec,
		signExec:    rateExec.NoRetry(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		confirmWait: confirmWait,
	}
	v.newBackOff = func() backoff.BackOff {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxInterval = 10 * time.Second
		exp.MaxElapsedTime = v.confirmWait
		return exp
	}
	return v
}

// VenueErrorHandler turns a 4xx venue response into a *httpclient.StatusError
// carrying the venue's message.
func VenueErrorHandler(logger *zap.Logger) func(int, []byte) error {
	return func(status int, body []byte) error {
		var resp venueErrorResponse
		_ = json.Unmarshal(body, &resp)

		logger.Warn("venue.client_error",
			zap.Int("status", status),
			zap.String("code", resp.Error.Code),
			zap.String("message", resp.Error.Message))

		msg := resp.Error.Message
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = string(body)
		}
		return &httpclient.StatusError{Venue: "venue", Status: status, Body: body, Message: msg}
	}
}

func (v *VenueExecutor) Sign(ctx context.Context, q model.Quote) (model.Commitment, error) {
	v.logger.Info("venue.execute.start", zap.String("quote_id", q.ID), zap.String("maker", q.Maker))

	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, v.baseURL+"/v1/customer/quotes/"+url.PathEscape(q.ID)+"/execute", nil)
	if err != nil {
		return model.Commitment{}, err
	}
	v.authorize(req)
	req.Header.Set("Idempotency-Key", q.ID)

	// execute is not replayed: a retried POST could fill twice
	var resp executeResponse
	if err := v.signExec.DoJSON(ctx, req, v.exec.Venue(), &resp); err != nil {
		return model.Commitment{}, fmt.Errorf("venue: execute quote: %w", err)
	}
	if resp.Transaction.ID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "no transaction returned"
		}
		return model.Commitment{}, fmt.Errorf("venue: execute quote: %s", msg)
	}

	v.logger.Info("venue.execute.success",
		zap.String("quote_id", q.ID),
		zap.String("transaction_id", resp.Transaction.ID),
		zap.String("status", resp.Transaction.Status))

	return model.Commitment{
		ID:       resp.Transaction.ID,
		QuoteID:  q.ID,
		Maker:    q.Maker,
		SignedAt: time.Now().UTC(),
	}, nil
}

func (v *VenueExecutor) Confirm(ctx context.Context, c model.Commitment) (model.Settlement, error) {
	var settled venueTransaction

	op := func() error {
		tx, err := v.getTransaction(ctx, c.ID)
		if err != nil {
			var se *httpclient.StatusError
			if errors.As(err, &se) {
				return backoff.Permanent(err)
			}
			return err
		}
		switch strings.ToUpper(tx.Status) {
		case venueSettled:
			settled = tx
			return nil
		case venueFailed, venueCancelled:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTradeRejected, NormalizeStatus(tx.Status)))
		default:
			v.logger.Debug("venue.confirm.pending",
				zap.String("transaction_id", c.ID),
				zap.String("status", tx.Status))
			return errors.New("transaction " + c.ID + " still " + strings.ToLower(tx.Status))
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(v.newBackOff(), ctx)); err != nil {
		v.logger.Warn("venue.confirm.failed", zap.String("transaction_id", c.ID), zap.Error(err))
		return model.Settlement{}, err
	}

	at := time.Now().UTC()
	if settled.SettledAt != "" {
		if t, err := time.Parse(time.RFC3339, settled.SettledAt); err == nil {
			at = t
		}
	}

	v.logger.Info("venue.confirm.settled", zap.String("transaction_id", c.ID))
	return model.Settlement{
		ID:           settled.ID,
		CommitmentID: c.ID,
		Status:       NormalizeStatus(settled.Status),
		Reference:    settled.ID,
		SettledAt:    at,
	}, nil
}

func (v *VenueExecutor) getTransaction(ctx context.Context, id string) (venueTransaction, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet, v.baseURL+"/v1/customer/transactions/"+url.PathEscape(id), nil)
	if err != nil {
		return venueTransaction{}, err
	}
	v.authorize(req)

	var resp transactionResponse
	if err := v.exec.DoJSON(ctx, req, v.exec.Venue(), &resp); err != nil {
		return venueTransaction{}, err
	}
	return resp.Transaction, nil
}

func (v *VenueExecutor) authorize(req *http.Request) {
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}
}
