package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tradeflow/pkg/logger"
)

func newTestEcho(t *testing.T) (*echo.Echo, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := logger.NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	e := echo.New()
	e.Use(Recover(l), RequestLogging(l), Metrics(l, 0), CORS("https://desk.example"))
	e.GET("/boom", func(echo.Context) error { panic("bad bar") })
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e, &buf
}

func TestRecoverWritesEnvelope(t *testing.T) {
	e, buf := newTestEcho(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_INTERNAL")
	assert.Contains(t, buf.String(), "http handler panic")
}

func TestMetricsCountsByRoute(t *testing.T) {
	e, _ := newTestEcho(t)
	before := testutil.ToFloat64(requestMetrics().requests.WithLabelValues("/ok", http.MethodGet, "200"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	after := testutil.ToFloat64(requestMetrics().requests.WithLabelValues("/ok", http.MethodGet, "200"))
	assert.Equal(t, before+1, after)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	e, _ := newTestEcho(t)
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "https://desk.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "https://desk.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(0))
}
