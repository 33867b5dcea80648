package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Observation struct {
	ItemID    string          `json:"item_id"`
	Price     decimal.Decimal `json:"price"`
	InStock   bool            `json:"in_stock"`
	CheckedAt time.Time       `json:"checked_at"`
}

// History is an item's observations in CheckedAt order.
type History []Observation

// LowestSince returns the lowest in-stock price observed at or after since.
func (h History) LowestSince(since time.Time) (decimal.Decimal, bool) {
	var low decimal.Decimal
	found := false
	for _, o := range h {
		if !o.InStock || o.CheckedAt.Before(since) {
			continue
		}
		if !found || o.Price.LessThan(low) {
			low = o.Price
			found = true
		}
	}
	return low, found
}

// Latest returns the most recent observation.
func (h History) Latest() (Observation, bool) {
	if len(h) == 0 {
		return Observation{}, false
	}
	return h[len(h)-1], true
}

// IsNewLow reports whether price is at or below every in-stock price seen in
// the window ending at now. An empty window counts as a new low.
func IsNewLow(h History, price decimal.Decimal, now time.Time, window time.Duration) bool {
	low, ok := h.LowestSince(now.Add(-window))
	if !ok {
		return true
	}
	return price.LessThanOrEqual(low)
}
