package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/internal/domain/models"
	apimetrics "Tradeflow/internal/service/metrics"
	"Tradeflow/internal/service/ratelimit"
	"Tradeflow/internal/usecase"
	"Tradeflow/pkg/logger"
)

type fakeService struct {
	mu     sync.Mutex
	frames chan models.Frame
	starts []string
}

func newFakeService() *fakeService {
	return &fakeService{frames: make(chan models.Frame, 8)}
}

func (f *fakeService) StartPhase(_ context.Context, phase models.Phase, date string, _ map[string]string) (usecase.StartResult, error) {
	if date == "2024-03-16" {
		return usecase.StartResult{}, errors.New("calendar: not a trading day")
	}
	f.mu.Lock()
	f.starts = append(f.starts, string(phase))
	n := len(f.starts)
	f.mu.Unlock()
	lifecycle := models.LifecycleStarted
	if n > 1 {
		lifecycle = models.LifecycleCached
	}
	return usecase.StartResult{Status: models.PhaseStatus{TradingDate: date, Phase: phase}, Lifecycle: lifecycle}, nil
}

func (f *fakeService) Status() models.ServiceStatus {
	return models.ServiceStatus{Queued: []models.PhaseRef{}, Completed: []models.PhaseRef{}}
}

func (f *fakeService) Subscribe() (<-chan models.Frame, func()) {
	return f.frames, func() {}
}

func dial(t *testing.T, svc PhaseService, opts ...Option) *websocket.Conn {
	t.Helper()
	e := echo.New()
	NewCommandHandler(svc, ratelimit.New(), apimetrics.NewAPI(prometheus.NewRegistry()), logger.Nop(), opts...).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, cmd string) models.Frame {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(cmd)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f models.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestCommandProtocol(t *testing.T) {
	svc := newFakeService()
	conn := dial(t, svc)

	f := roundTrip(t, conn, `{"command":"startPhase","phase":"planning","tradingDate":"2024-03-14"}`)
	assert.Equal(t, models.FrameLifecycle, f.Type)
	assert.Equal(t, models.PhasePlanning, f.Phase)
	assert.Equal(t, "2024-03-14", f.TradingDate)
	assert.Equal(t, models.LifecycleStarted, f.Status)

	f = roundTrip(t, conn, `{"command":"startPhase","phase":"planning","tradingDate":"2024-03-14"}`)
	assert.Equal(t, models.LifecycleCached, f.Status)

	f = roundTrip(t, conn, `{"command":"status"}`)
	assert.Equal(t, models.FrameLifecycle, f.Type)
	assert.Equal(t, models.LifecycleIdle, f.Status)
	require.NotNil(t, f.Service)
}

func TestCommandProtocolErrors(t *testing.T) {
	conn := dial(t, newFakeService())

	cases := []struct {
		name string
		cmd  string
		want string
	}{
		{"malformed", `{"command":`, "malformed command"},
		{"unknown command", `{"command":"fly"}`, "unknown command: fly"},
		{"unknown phase", `{"command":"startPhase","phase":"lunch"}`, "unknown phase"},
		{"bad date", `{"command":"startPhase","phase":"trading","tradingDate":"16/03/2024"}`, "YYYY-MM-DD"},
		{"service error", `{"command":"startPhase","phase":"trading","tradingDate":"2024-03-16"}`, "not a trading day"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := roundTrip(t, conn, tc.cmd)
			assert.Equal(t, models.FrameError, f.Type)
			assert.Contains(t, f.Error, tc.want)
		})
	}
}

func TestBroadcastFramesArePushed(t *testing.T) {
	svc := newFakeService()
	conn := dial(t, svc)

	// The status reply proves the connection is subscribed.
	roundTrip(t, conn, `{"command":"status"}`)

	ev := models.NewPhaseCompleteEvent(time.Date(2024, 3, 14, 8, 30, 0, 0, time.UTC))
	ev.TradingDate, ev.Phase = "2024-03-14", models.PhasePlanning
	svc.frames <- models.EventFrame(ev)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f models.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, models.FrameEvent, f.Type)
	require.NotNil(t, f.Event)
	assert.Equal(t, models.EventPhaseComplete, f.Event.Type)

	close(svc.frames)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "slow subscribers are disconnected: %v", err)
}

func TestCommandsAreRateLimited(t *testing.T) {
	conn := dial(t, newFakeService(), WithCommandRate(2, 0.001))

	assert.Equal(t, models.FrameLifecycle, roundTrip(t, conn, `{"command":"status"}`).Type)
	assert.Equal(t, models.FrameLifecycle, roundTrip(t, conn, `{"command":"status"}`).Type)
	f := roundTrip(t, conn, `{"command":"status"}`)
	assert.Equal(t, models.FrameError, f.Type)
	assert.Equal(t, "rate limited", f.Error)
}
