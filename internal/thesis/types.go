// Package thesis implements the persisted thesis lifecycle of spec.md §4.9:
// a documented hypothesis linking model probability to an intended trade,
// with an order<->thesis index and calibration statistics over settled
// outcomes.
package thesis

import (
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateDraft       State = "DRAFT"
	StateActive      State = "ACTIVE"
	StateInvalidated State = "INVALIDATED"
	StateRealized    State = "REALIZED"
	StateExpired     State = "EXPIRED"
)

// Direction mirrors broker.Direction to avoid a hard dependency from thesis
// into the broker package (theses can outlive any single venue model).
type Direction string

const (
	DirectionYes Direction = "yes"
	DirectionNo  Direction = "no"
)

// Thesis is one documented hypothesis and its realized outcome.
type Thesis struct {
	ID                   string          `json:"id"`
	MarketTicker         string          `json:"market_ticker"`
	Hypothesis           string          `json:"hypothesis"`
	Direction            Direction       `json:"direction"`
	EntryPriceTarget     decimal.Decimal `json:"entry_price_target"`
	ExitPriceTarget      decimal.Decimal `json:"exit_price_target"`
	ModelProbability     decimal.Decimal `json:"model_probability"`
	MarketImpliedAtEntry decimal.Decimal `json:"market_implied_at_entry"`
	FeeAdjustedEdge      decimal.Decimal `json:"fee_adjusted_edge"`
	Signals              []string        `json:"signals,omitempty"`

	State State `json:"state"`

	OrderIDs      []string        `json:"order_ids,omitempty"`
	FilledCount   decimal.Decimal `json:"filled_count"`
	AvgFillPrice  decimal.Decimal `json:"avg_fill_price"`

	ExitPrice       *decimal.Decimal `json:"exit_price,omitempty"`
	OutcomeCorrect  *bool            `json:"outcome_correct,omitempty"`
	RealizedPnL     decimal.Decimal  `json:"realized_pnl"`
	InvalidReason   string           `json:"invalid_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
