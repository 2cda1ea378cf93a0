package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	var down error
	e := echo.New()
	NewHealthEchoHandler(
		CheckFunc{Label: "clickhouse", Ping: func(context.Context) error { return nil }},
		CheckFunc{Label: "redis", Ping: func(context.Context) error { return down }},
	).RegisterRoutes(e)

	rec, _ := do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var results map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.Equal(t, map[string]string{"clickhouse": "ok", "redis": "ok"}, results)

	down = errors.New("connection refused")
	rec, env = do(t, e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.Equal(t, "connection refused", results["redis"])
}
