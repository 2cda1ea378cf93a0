package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"Tradeflow/internal/domain/models"
	apimetrics "Tradeflow/internal/service/metrics"
	"Tradeflow/internal/service/ratelimit"
	"Tradeflow/internal/usecase"
	xhttp "Tradeflow/pkg/http"
	"Tradeflow/pkg/logger"
)

// PhaseService is the part of the phase service the command protocol drives.
type PhaseService interface {
	StartPhase(ctx context.Context, phase models.Phase, date string, options map[string]string) (usecase.StartResult, error)
	Status() models.ServiceStatus
	Subscribe() (<-chan models.Frame, func())
}

type Option func(*CommandHandler)

// WithPingInterval sets how often idle connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(h *CommandHandler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithCommandRate limits commands per connection.
func WithCommandRate(burst, perSecond float64) Option {
	return func(h *CommandHandler) {
		if burst >= 1 && perSecond > 0 {
			h.burst, h.rate = burst, perSecond
		}
	}
}

// CommandHandler serves the command protocol on /ws. Every connection gets
// all frames the phase service broadcasts plus replies to its own commands.
type CommandHandler struct {
	svc      PhaseService
	limiter  *ratelimit.Limiter
	metrics  *apimetrics.API
	logger   *logger.Logger
	upgrader websocket.Upgrader

	pingInterval time.Duration
	writeWait    time.Duration
	burst, rate  float64
}

func NewCommandHandler(svc PhaseService, limiter *ratelimit.Limiter, m *apimetrics.API, l *logger.Logger, opts ...Option) *CommandHandler {
	h := &CommandHandler{
		svc:     svc,
		limiter: limiter,
		metrics: m,
		logger:  l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		writeWait:    10 * time.Second,
		burst:        10,
		rate:         2,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CommandHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

func (h *CommandHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}
	h.serveConn(c.Request().Context(), conn, c.Request().RemoteAddr)
	return nil
}

func (h *CommandHandler) serveConn(ctx context.Context, conn *websocket.Conn, peer string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()
	defer h.limiter.Forget(peer)

	frames, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()

	replies := make(chan models.Frame, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		// Closing the conn unblocks the reader below.
		defer conn.Close()
		h.writeLoop(ctx, conn, frames, replies)
	}()

	log := h.logger.With(logger.String("peer", peer))
	log.Info("websocket connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Warn("websocket read failed", logger.Error(err))
			}
			break
		}
		reply := h.handle(ctx, peer, data)
		select {
		case replies <- reply:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	cancel()
	<-writerDone
	log.Info("websocket closed")
}

// writeLoop is the only writer on conn.
func (h *CommandHandler) writeLoop(ctx context.Context, conn *websocket.Conn, frames <-chan models.Frame, replies <-chan models.Frame) {
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	write := func(f models.Frame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		return conn.WriteJSON(f) == nil
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(h.writeWait))
			return
		case f := <-replies:
			if !write(f) {
				return
			}
		case f, ok := <-frames:
			if !ok {
				// Dropped for falling behind.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"), time.Now().Add(h.writeWait))
				return
			}
			if !write(f) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		}
	}
}

// handle turns one inbound message into its reply frame.
func (h *CommandHandler) handle(ctx context.Context, peer string, data []byte) models.Frame {
	defer h.metrics.Observe("ws_command", time.Now())

	var cmd models.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.metrics.Error("ws_command", "malformed")
		return models.ErrorFrame("", "malformed command: "+err.Error())
	}
	if !h.limiter.Allow(peer, h.burst, h.rate) {
		h.metrics.Error("ws_command", "rate_limited")
		return models.ErrorFrame(models.Phase(cmd.Phase), "rate limited")
	}

	switch cmd.Command {
	case models.CommandStartPhase:
		phase, err := models.ParsePhase(cmd.Phase)
		if err != nil {
			h.metrics.Error("ws_command", "unknown_phase")
			return models.ErrorFrame(models.Phase(cmd.Phase), err.Error())
		}
		if cmd.TradingDate != "" {
			req := models.StartPhaseRequest{Phase: string(phase), TradingDate: cmd.TradingDate}
			if err := xhttp.Validate(&req); err != nil {
				h.metrics.Error("ws_command", "validation")
				return models.ErrorFrame(phase, "tradingDate must be YYYY-MM-DD")
			}
		}
		res, err := h.svc.StartPhase(ctx, phase, cmd.TradingDate, cmd.Options)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Warn("start phase rejected", logger.String("phase", string(phase)), logger.Error(err))
			}
			h.metrics.Error("ws_command", "start_failed")
			return models.ErrorFrame(phase, err.Error())
		}
		return models.LifecycleFrame(res.Status.TradingDate, phase, res.Lifecycle)
	case models.CommandStatus:
		return models.StatusFrame(h.svc.Status())
	default:
		h.metrics.Error("ws_command", "unknown_command")
		return models.ErrorFrame(models.Phase(cmd.Phase), "unknown command: "+cmd.Command)
	}
}

var _ xhttp.Handler = (*CommandHandler)(nil)
