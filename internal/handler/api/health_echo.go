package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "Tradeflow/pkg/http"
)

// Checker is a dependency readiness depends on.
type Checker interface {
	Name() string
	Health(ctx context.Context) error
}

// CheckFunc adapts a ping function to Checker.
type CheckFunc struct {
	Label string
	Ping  func(ctx context.Context) error
}

func (c CheckFunc) Name() string                     { return c.Label }
func (c CheckFunc) Health(ctx context.Context) error { return c.Ping(ctx) }

type HealthEchoHandler struct {
	checks  []Checker
	timeout time.Duration
}

func NewHealthEchoHandler(checks ...Checker) *HealthEchoHandler {
	return &HealthEchoHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
}

func (h *HealthEchoHandler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Ready pings every dependency and answers 503 if any fails.
func (h *HealthEchoHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	status := http.StatusOK
	for _, chk := range h.checks {
		if err := chk.Health(ctx); err != nil {
			results[chk.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[chk.Name()] = "ok"
	}
	return xhttp.DataResponse(c, status, results)
}

var _ xhttp.Handler = (*HealthEchoHandler)(nil)
