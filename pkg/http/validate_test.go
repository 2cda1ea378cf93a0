package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollQuery struct {
	Phase string `param:"phase" validate:"required,oneof=planning preparing trading"`
	Date  string `query:"date" validate:"required,datetime=2006-01-02"`
	Since int    `query:"since" default:"0" validate:"gte=0"`
}

func TestValidateReportsWireNames(t *testing.T) {
	err := Validate(&pollQuery{Phase: "closing", Date: "03/14/2024", Since: -1})
	require.Error(t, err)

	errs := toValidationErrors(err)
	require.Len(t, errs, 3)
	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_ONEOF", byField["phase"].Code)
	assert.Equal(t, []string{"planning", "preparing", "trading"}, byField["phase"].Params["options"])
	assert.Equal(t, "date must be a date like 2006-01-02", byField["date"].Message)
	assert.Equal(t, "ERR_GTE", byField["since"].Code)
}

func TestValidateAcceptsGoodRequest(t *testing.T) {
	assert.NoError(t, Validate(&pollQuery{Phase: "trading", Date: "2024-03-14"}))
}

func TestToValidationErrorsPlainError(t *testing.T) {
	errs := toValidationErrors(assert.AnError)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}
