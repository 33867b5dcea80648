package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"joinpounce/db"
	"joinpounce/internal/pricing"
)

type historyRow struct {
	ItemID    string          `db:"item_id"`
	Price     decimal.Decimal `db:"price"`
	InStock   bool            `db:"in_stock"`
	CheckedMS int64           `db:"checked_ms"`
}

// AppendResult is the item as it was before the observation landed.
type AppendResult struct {
	ObservationID string
	Before        Item
}

// AppendObservation adds one row to the item's price history and moves the
// item's current price and last-check time forward, atomically. History is
// append-only: observations older than the last check are rejected, and one
// at the same instant is either a redelivery (ErrDuplicateObservation) or a
// conflicting reading (ErrStaleObservation).
func (s *Store) AppendObservation(ctx context.Context, obs pricing.Observation) (AppendResult, error) {
	if obs.ItemID == "" {
		return AppendResult{}, fmt.Errorf("append observation: missing item id")
	}
	if obs.Price.IsNegative() {
		return AppendResult{}, fmt.Errorf("append observation: %w", pricing.ErrInvalidPrice)
	}
	if obs.CheckedAt.IsZero() {
		obs.CheckedAt = s.now()
	}
	checked := toMillis(obs.CheckedAt)

	return db.Tx(ctx, s.db, func(tx *sqlx.Tx) (AppendResult, error) {
		before, err := getItem(ctx, tx, obs.ItemID)
		if err != nil {
			return AppendResult{}, err
		}
		if !before.IsActive {
			return AppendResult{}, fmt.Errorf("item %s: %w", obs.ItemID, ErrItemInactive)
		}
		if before.LastCheckedAt != nil && checked < toMillis(*before.LastCheckedAt) {
			return AppendResult{}, fmt.Errorf("item %s at %s: %w", obs.ItemID, obs.CheckedAt.Format(time.RFC3339), ErrStaleObservation)
		}
		if before.LastCheckedAt != nil && checked == toMillis(*before.LastCheckedAt) {
			if err := sameInstant(ctx, tx, obs, checked); err != nil {
				return AppendResult{}, err
			}
		}

		id := uuid.NewString()
		ins := tx.Rebind(`INSERT INTO price_history (id, item_id, price, in_stock, checked_ms) VALUES (?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, ins, id, obs.ItemID, obs.Price, obs.InStock, checked); err != nil {
			return AppendResult{}, fmt.Errorf("insert price_history: %w", err)
		}

		// An out-of-stock reading still counts as a check but does not move
		// the current price.
		current := before.CurrentPrice
		if obs.InStock {
			current = decimal.NewNullDecimal(obs.Price)
		}
		original := before.OriginalPrice
		if !original.Valid && obs.InStock {
			original = decimal.NewNullDecimal(obs.Price)
		}

		upd := tx.Rebind(`UPDATE items SET current_price = ?, original_price = ?, last_checked_ms = ?, updated_ms = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, upd, current, original, checked, toMillis(s.now()), obs.ItemID); err != nil {
			return AppendResult{}, fmt.Errorf("update item price: %w", err)
		}

		return AppendResult{ObservationID: id, Before: before}, nil
	})
}

func sameInstant(ctx context.Context, tx *sqlx.Tx, obs pricing.Observation, checked int64) error {
	var existing []historyRow
	q := tx.Rebind(`SELECT item_id, price, in_stock, checked_ms FROM price_history WHERE item_id = ? AND checked_ms = ?`)
	if err := tx.SelectContext(ctx, &existing, q, obs.ItemID, checked); err != nil {
		return fmt.Errorf("price history %s at %d: %w", obs.ItemID, checked, err)
	}
	if len(existing) == 0 {
		return nil
	}
	at := obs.CheckedAt.Format(time.RFC3339Nano)
	if existing[0].Price.Equal(obs.Price) && existing[0].InStock == obs.InStock {
		return fmt.Errorf("item %s at %s: %w", obs.ItemID, at, ErrDuplicateObservation)
	}
	return fmt.Errorf("item %s at %s conflicts with recorded reading: %w", obs.ItemID, at, ErrStaleObservation)
}

// PriceHistory returns the item's observations checked at or after since,
// oldest first. A zero since returns the full history.
func (s *Store) PriceHistory(ctx context.Context, itemID string, since time.Time) (pricing.History, error) {
	var sinceMS int64
	if !since.IsZero() {
		sinceMS = toMillis(since)
	}

	var rows []historyRow
	q := s.db.Rebind(`SELECT item_id, price, in_stock, checked_ms FROM price_history
WHERE item_id = ? AND checked_ms >= ?
ORDER BY checked_ms, id`)
	if err := s.db.SelectContext(ctx, &rows, q, itemID, sinceMS); err != nil {
		return nil, fmt.Errorf("price history %s: %w", itemID, err)
	}

	out := make(pricing.History, 0, len(rows))
	for _, r := range rows {
		out = append(out, pricing.Observation{
			ItemID:    r.ItemID,
			Price:     r.Price,
			InStock:   r.InStock,
			CheckedAt: fromMillis(r.CheckedMS),
		})
	}
	return out, nil
}
