package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	apimetrics "Tradeflow/internal/service/metrics"
	"Tradeflow/internal/usecase"
	"Tradeflow/pkg/calendar"
	xhttp "Tradeflow/pkg/http"
	xlogger "Tradeflow/pkg/logger"
)

// PhaseService is what the HTTP and websocket surfaces drive.
type PhaseService interface {
	StartPhase(ctx context.Context, phase models.Phase, date string, options map[string]string) (usecase.StartResult, error)
	Poll(ctx context.Context, date string, phase models.Phase, since int) (models.PhaseStatus, error)
	Status() models.ServiceStatus
	Snapshot(ctx context.Context, date string) (*models.TradingDayState, error)
}

// PhaseEchoHandler serves the polling protocol over HTTP.
type PhaseEchoHandler struct {
	logger  *xlogger.Logger
	svc     PhaseService
	metrics *apimetrics.API
}

func NewPhaseEchoHandler(logger *xlogger.Logger, svc PhaseService, m *apimetrics.API) *PhaseEchoHandler {
	return &PhaseEchoHandler{logger: logger, svc: svc, metrics: m}
}

func (h *PhaseEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/phases/:phase/start", h.Start)
	g.GET("/phases/:phase/poll", h.Poll)
	g.GET("/status", h.Status)
	g.GET("/state", h.State)
}

// Start queues a phase. A new run answers 202; cached and running runs answer 200.
func (h *PhaseEchoHandler) Start(c echo.Context) error {
	defer h.metrics.Observe("start", time.Now())
	req := &models.StartPhaseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error("start", "validation")
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.StartPhase(c.Request().Context(), models.Phase(req.Phase), req.TradingDate, req.Options)
	if err != nil {
		return h.fail(c, "start", err)
	}
	if res.Lifecycle == models.LifecycleStarted {
		return xhttp.AcceptedResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

// Poll returns the phase's events from since on. Clients poll about once a second.
func (h *PhaseEchoHandler) Poll(c echo.Context) error {
	defer h.metrics.Observe("poll", time.Now())
	req := &models.PollRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error("poll", "validation")
		return xhttp.BadRequestResponse(c, verr)
	}

	st, err := h.svc.Poll(c.Request().Context(), req.TradingDate, models.Phase(req.Phase), req.Since)
	if err != nil {
		return h.fail(c, "poll", err)
	}
	if !st.Done() {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *PhaseEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Status())
}

// State returns the day's snapshot: live while it runs, archived after trading.
func (h *PhaseEchoHandler) State(c echo.Context) error {
	defer h.metrics.Observe("state", time.Now())
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Error("state", "validation")
		return xhttp.BadRequestResponse(c, verr)
	}
	state, err := h.svc.Snapshot(c.Request().Context(), req.TradingDate)
	if err != nil {
		return h.fail(c, "state", err)
	}
	return xhttp.SuccessResponse(c, state)
}

func (h *PhaseEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		appErr = xhttp.NotFoundError("nothing recorded for this trading date and phase")
	case errors.Is(err, models.ErrUnknownPhase), errors.Is(err, calendar.ErrNotTradingDay), errors.Is(err, calendar.ErrInvalidDate):
		appErr = xhttp.BadRequestError(err.Error())
	default:
		h.metrics.Error(endpoint, "internal")
		h.logger.Error("phase api error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.metrics.Error(endpoint, appErr.Code)
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

var _ xhttp.Handler = (*PhaseEchoHandler)(nil)
