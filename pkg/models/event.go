package models

import "time"

// PriceQuote is a point-in-time price for a symbol, as resolved by the
// price source. Immutable once returned; never persisted by this service.
type PriceQuote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
}

// ChangeEvent is the payload that crosses the Kafka boundary and is pushed
// to realtime connections. Field names and types are part of the contract.
type ChangeEvent struct {
	UserID           int64     `json:"userId"`
	Symbol           string    `json:"symbol"`
	OldPrice         float64   `json:"oldPrice"`
	NewPrice         float64   `json:"newPrice"`
	PercentageChange float64   `json:"percentageChange"`
	Timestamp        time.Time `json:"timestamp"` // RFC 3339
	IsSignificant    bool      `json:"isSignificant"`
}

// NewChangeEvent computes the percentage change between two prices and
// classifies it against the significance threshold. The comparison is
// inclusive: a change of exactly threshold percent is significant.
func NewChangeEvent(symbol string, oldPrice, newPrice float64, userID int64, at time.Time, threshold float64) ChangeEvent {
	pct := (newPrice - oldPrice) / oldPrice * 100

	abs := pct
	if abs < 0 {
		abs = -abs
	}

	return ChangeEvent{
		UserID:           userID,
		Symbol:           symbol,
		OldPrice:         oldPrice,
		NewPrice:         newPrice,
		PercentageChange: pct,
		Timestamp:        at,
		IsSignificant:    abs >= threshold,
	}
}
