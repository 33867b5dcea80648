package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("invalid price")

var hundred = decimal.NewFromInt(100)

// Thresholds are the per-item drop limits. A drop is significant when it
// meets either one.
type Thresholds struct {
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Percent: decimal.NewFromInt(10), Amount: decimal.NewFromInt(10)}
}

// WithDefaults builds thresholds from optional limits. Unset limits come from
// fallback; an explicit zero is kept and means any drop counts.
func WithDefaults(percent, amount decimal.NullDecimal, fallback Thresholds) Thresholds {
	t := fallback
	if percent.Valid {
		t.Percent = percent.Decimal
	}
	if amount.Valid {
		t.Amount = amount.Decimal
	}
	return t
}

func (t Thresholds) Validate() error {
	if t.Percent.IsNegative() || t.Amount.IsNegative() {
		return fmt.Errorf("thresholds must not be negative (percent=%s amount=%s)", t.Percent, t.Amount)
	}
	return nil
}

type Drop struct {
	Before  decimal.Decimal `json:"before"`
	After   decimal.Decimal `json:"after"`
	Amount  decimal.Decimal `json:"amount"`
	Percent decimal.Decimal `json:"percent"`
}

// IsDrop reports whether the price went down at all.
func (d Drop) IsDrop() bool { return d.Amount.IsPositive() }

func (d Drop) MeetsThresholds(th Thresholds) bool {
	if !d.IsDrop() {
		return false
	}
	return d.Percent.GreaterThanOrEqual(th.Percent) || d.Amount.GreaterThanOrEqual(th.Amount)
}

func validate(before, after decimal.Decimal) error {
	if !before.IsPositive() {
		return fmt.Errorf("%w: before price must be positive, got %s", ErrInvalidPrice, before)
	}
	if after.IsNegative() {
		return fmt.Errorf("%w: after price must not be negative, got %s", ErrInvalidPrice, after)
	}
	return nil
}

// ComputeDrop returns how far the price fell from before to after. A rise or
// no change yields a zero Drop amount and percent.
func ComputeDrop(before, after decimal.Decimal) (Drop, error) {
	if err := validate(before, after); err != nil {
		return Drop{}, err
	}

	d := Drop{Before: before, After: after, Amount: decimal.Zero, Percent: decimal.Zero}
	if after.GreaterThanOrEqual(before) {
		return d, nil
	}
	d.Amount = before.Sub(after)
	d.Percent = d.Amount.Div(before).Mul(hundred)
	return d, nil
}

func IsSignificantDrop(before, after decimal.Decimal, th Thresholds) (bool, error) {
	d, err := ComputeDrop(before, after)
	if err != nil {
		return false, err
	}
	return d.MeetsThresholds(th), nil
}
