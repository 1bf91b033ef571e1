package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/desk"
	"github.com/Checker-Finance/fxo-desk/internal/rfq"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

// Sessions is the session registry used by the handler.
type Sessions interface {
	Open() *rfq.Machine
	Get(id string) (*rfq.Machine, error)
	CloseSession(id string) error
}

// SpotSource reports the latest oracle observations.
type SpotSource interface {
	Snapshot() []model.SpotObservation
}

// SessionHandler handles HTTP API requests for RFQ sessions.
type SessionHandler struct {
	logger   *zap.Logger
	sessions Sessions
	spot     SpotSource
	now      func() time.Time
}

func NewSessionHandler(logger *zap.Logger, sessions Sessions, spot SpotSource) *SessionHandler {
	return &SessionHandler{logger: logger, sessions: sessions, spot: spot, now: time.Now}
}

// Open handles POST /api/v1/sessions.
func (h *SessionHandler) Open(c *fiber.Ctx) error {
	m := h.sessions.Open()
	return c.Status(fiber.StatusCreated).JSON(m.Snapshot())
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	m, err := h.session(c)
	if err != nil {
		return h.fail(c, err, nil)
	}
	return c.JSON(m.Snapshot())
}

// Close handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) Close(c *fiber.Ctx) error {
	if err := h.sessions.CloseSession(c.Params("id")); err != nil {
		return h.fail(c, err, nil)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RequestQuotes handles POST /api/v1/sessions/:id/quotes.
func (h *SessionHandler) RequestQuotes(c *fiber.Ctx) error {
	m, err := h.session(c)
	if err != nil {
		return h.fail(c, err, nil)
	}

	var body QuoteRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	req, err := body.toRFQRequest()
	if err != nil {
		return h.fail(c, err, nil)
	}

	if err := m.RequestQuotes(req); err != nil {
		return h.fail(c, err, m)
	}
	h.logger.Info("api.request_quotes",
		zap.String("session_id", m.ID()),
		zap.String("pair", body.Pair),
		zap.String("notional", req.Notional.String()))
	return c.Status(fiber.StatusAccepted).JSON(m.Snapshot())
}

// Select handles POST /api/v1/sessions/:id/select.
func (h *SessionHandler) Select(c *fiber.Ctx) error {
	m, err := h.session(c)
	if err != nil {
		return h.fail(c, err, nil)
	}

	var body SelectQuoteBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validationMessage(err)})
	}

	if err := m.SelectQuote(body.QuoteID); err != nil {
		return h.fail(c, err, m)
	}
	return c.JSON(m.Snapshot())
}

// Execute handles POST /api/v1/sessions/:id/execute.
func (h *SessionHandler) Execute(c *fiber.Ctx) error {
	m, err := h.session(c)
	if err != nil {
		return h.fail(c, err, nil)
	}
	if err := m.ExecuteTrade(); err != nil {
		return h.fail(c, err, m)
	}
	h.logger.Info("api.execute", zap.String("session_id", m.ID()))
	return c.Status(fiber.StatusAccepted).JSON(m.Snapshot())
}

// Clear handles POST /api/v1/sessions/:id/clear.
func (h *SessionHandler) Clear(c *fiber.Ctx) error {
	m, err := h.session(c)
	if err != nil {
		return h.fail(c, err, nil)
	}
	if err := m.Clear(); err != nil {
		return h.fail(c, err, m)
	}
	return c.JSON(m.Snapshot())
}

// Spot handles GET /api/v1/spot.
func (h *SessionHandler) Spot(c *fiber.Ctx) error {
	var spots []model.SpotObservation
	if h.spot != nil {
		spots = h.spot.Snapshot()
	}
	if spots == nil {
		spots = []model.SpotObservation{}
	}
	return c.JSON(SpotResponse{Spots: spots})
}

// Pairs handles GET /api/v1/pairs.
func (h *SessionHandler) Pairs(c *fiber.Ctx) error {
	return c.JSON(PairsResponse{
		Pairs:          model.SupportedPairs,
		DefaultRequest: model.DefaultRequest(h.now()),
	})
}

func (h *SessionHandler) session(c *fiber.Ctx) (*rfq.Machine, error) {
	return h.sessions.Get(c.Params("id"))
}

// fail maps domain errors to status codes. Rejected transitions return 409
// with the session snapshot so the caller can render its error state.
func (h *SessionHandler) fail(c *fiber.Ctx, err error, m *rfq.Machine) error {
	resp := ErrorResponse{Error: err.Error()}
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		status = fiber.StatusBadRequest
	case errors.Is(err, desk.ErrSessionNotFound), errors.Is(err, rfq.ErrClosed):
		status = fiber.StatusNotFound
	case errors.Is(err, rfq.ErrInvalidTransition),
		errors.Is(err, rfq.ErrWindowExpired),
		errors.Is(err, rfq.ErrUnknownQuote),
		errors.Is(err, rfq.ErrNoQuoteSelected),
		errors.Is(err, rfq.ErrExecutionInFlight):
		status = fiber.StatusConflict
	}

	if m != nil && status != fiber.StatusNotFound {
		snap := m.Snapshot()
		resp.Session = &snap
	}
	if status == fiber.StatusInternalServerError {
		h.logger.Error("api.request_failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(resp)
}
