package core

import (
	"errors"
	"time"
)

var (
	ErrMissingColumn   = errors.New("missing column")
	ErrMissingSignal   = errors.New("missing signal column")
	ErrEmptySeries     = errors.New("empty series")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Signal values. A signal is the first difference of the desired position.
const (
	Sell = -1
	None = 0
	Buy  = 1
)

type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Side of an executed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Trade struct {
	TS       time.Time `json:"ts"`
	Side     Side      `json:"side"`
	Price    float64   `json:"price"`
	Qty      float64   `json:"qty"`
	Fee      float64   `json:"fee"`
	Cash     float64   `json:"cash"`
	Holdings float64   `json:"holdings"`
}

// Point is one bar of the portfolio trajectory.
type Point struct {
	TS       time.Time `json:"ts"`
	Close    float64   `json:"close"`
	Signal   int       `json:"signal"`
	Cash     float64   `json:"cash"`
	Holdings float64   `json:"holdings"`
	Total    float64   `json:"total"`
	Action   int       `json:"action"` // realized: +1 buy, -1 sell, 0 nothing
}
