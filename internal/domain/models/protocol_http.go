package models

// Requests for the phase HTTP endpoints.

type StartPhaseRequest struct {
	Phase       string            `param:"phase" json:"phase" validate:"required,oneof=planning preparing trading"`
	TradingDate string            `json:"tradingDate" validate:"omitempty,datetime=2006-01-02"`
	Options     map[string]string `json:"options"`
}

type PollRequest struct {
	Phase       string `param:"phase" validate:"required,oneof=planning preparing trading"`
	TradingDate string `query:"date" validate:"required,datetime=2006-01-02"`
	Since       int    `query:"since" default:"0" validate:"gte=0"`
}

type SnapshotRequest struct {
	TradingDate string `query:"date" validate:"required,datetime=2006-01-02"`
}
