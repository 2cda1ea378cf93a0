package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownPhase = errors.New("unknown phase")

// Phase is one step of the per-day chain planning -> preparing -> trading.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhasePreparing Phase = "preparing"
	PhaseTrading   Phase = "trading"
)

// Phases lists every phase in chain order.
var Phases = []Phase{PhasePlanning, PhasePreparing, PhaseTrading}

// ParsePhase accepts the wire names case-insensitively.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PhasePlanning, PhasePreparing, PhaseTrading:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// Next returns the phase that is started automatically after p completes.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhasePlanning:
		return PhasePreparing, true
	case PhasePreparing:
		return PhaseTrading, true
	}
	return "", false
}

// Order is p's position in Phases, or -1 for an unknown phase.
func (p Phase) Order() int {
	for i, q := range Phases {
		if q == p {
			return i
		}
	}
	return -1
}

// PhaseStatus is what a poll returns for one (trading date, phase).
type PhaseStatus struct {
	TradingDate string  `json:"tradingDate"`
	Phase       Phase   `json:"phase"`
	Started     bool    `json:"started"`
	Complete    bool    `json:"complete"`
	Errored     bool    `json:"errored"`
	Error       string  `json:"error,omitempty"`
	Events      []Event `json:"events"`
}

// Done reports whether polling this phase is final.
func (s PhaseStatus) Done() bool {
	return s.Complete || s.Errored
}

// PhaseKey identifies one phase run.
func PhaseKey(date string, phase Phase) string {
	return date + "/" + string(phase)
}
