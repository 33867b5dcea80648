package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type NotificationType string

const (
	NotificationPriceDrop NotificationType = "price_drop"
	NotificationDeadLink  NotificationType = "dead_link"
)

type Notification struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	ItemID         string              `json:"item_id"`
	Type           NotificationType    `json:"type"`
	PriceBefore    decimal.NullDecimal `json:"price_before"`
	PriceAfter     decimal.NullDecimal `json:"price_after"`
	AffiliateURL   string              `json:"affiliate_url,omitempty"`
	SentAt         *time.Time          `json:"sent_at,omitempty"`
	OpenedAt       *time.Time          `json:"opened_at,omitempty"`
	ConvertedAt    *time.Time          `json:"converted_at,omitempty"`
	PurchaseAmount decimal.NullDecimal `json:"purchase_amount"`
	CreatedAt      time.Time           `json:"created_at"`
}

type notificationRow struct {
	ID             string              `db:"id"`
	UserID         string              `db:"user_id"`
	ItemID         string              `db:"item_id"`
	Type           string              `db:"type"`
	PriceBefore    decimal.NullDecimal `db:"price_before"`
	PriceAfter     decimal.NullDecimal `db:"price_after"`
	AffiliateURL   string              `db:"affiliate_url"`
	SentMS         sql.NullInt64       `db:"sent_ms"`
	OpenedMS       sql.NullInt64       `db:"opened_ms"`
	ConvertedMS    sql.NullInt64       `db:"converted_ms"`
	PurchaseAmount decimal.NullDecimal `db:"purchase_amount"`
	CreatedMS      int64               `db:"created_ms"`
}

const notificationColumns = `id, user_id, item_id, type, price_before, price_after, affiliate_url,
  sent_ms, opened_ms, converted_ms, purchase_amount, created_ms`

func optionalMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func (r notificationRow) toNotification() Notification {
	return Notification{
		ID:             r.ID,
		UserID:         r.UserID,
		ItemID:         r.ItemID,
		Type:           NotificationType(r.Type),
		PriceBefore:    r.PriceBefore,
		PriceAfter:     r.PriceAfter,
		AffiliateURL:   r.AffiliateURL,
		SentAt:         optionalMillis(r.SentMS),
		OpenedAt:       optionalMillis(r.OpenedMS),
		ConvertedAt:    optionalMillis(r.ConvertedMS),
		PurchaseAmount: r.PurchaseAmount,
		CreatedAt:      fromMillis(r.CreatedMS),
	}
}

type CreateNotificationInput struct {
	// ID is optional; callers that need an id before the row exists (tracking
	// links, idempotent retries) pass their own.
	ID           string           `validate:"omitempty,uuid"`
	UserID       string           `validate:"required"`
	ItemID       string           `validate:"required"`
	Type         NotificationType `validate:"required,oneof=price_drop dead_link"`
	PriceBefore  decimal.NullDecimal
	PriceAfter   decimal.NullDecimal
	AffiliateURL string
}

// CreateNotification inserts the notification. Re-inserting an existing id
// returns the stored row unchanged.
func (s *Store) CreateNotification(ctx context.Context, in CreateNotificationInput) (Notification, error) {
	if err := s.validator.Struct(in); err != nil {
		return Notification{}, fmt.Errorf("validate notification: %w", err)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := s.GetNotification(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Notification{}, err
	}

	row := notificationRow{
		ID:           id,
		UserID:       in.UserID,
		ItemID:       in.ItemID,
		Type:         string(in.Type),
		PriceBefore:  in.PriceBefore,
		PriceAfter:   in.PriceAfter,
		AffiliateURL: in.AffiliateURL,
		CreatedMS:    toMillis(s.now()),
	}
	q := s.db.Rebind(`INSERT INTO notifications (` + notificationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		row.ID, row.UserID, row.ItemID, row.Type, row.PriceBefore, row.PriceAfter, row.AffiliateURL,
		row.SentMS, row.OpenedMS, row.ConvertedMS, row.PurchaseAmount, row.CreatedMS,
	); err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	s.logger.Infow("notification_created", "id", row.ID, "user_id", row.UserID, "item_id", row.ItemID, "type", row.Type)
	return row.toNotification(), nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Notification{}, fmt.Errorf("get notification %s: %w", id, err)
	}
	return row.toNotification(), nil
}

func (s *Store) MarkNotificationSent(ctx context.Context, id string, at time.Time) error {
	q := s.db.Rebind(`UPDATE notifications SET sent_ms = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark notification sent %s: %w", id, err)
	}
	return requireAffected(res, "notification", id)
}

// MarkNotificationOpened records the first open. It reports false when the
// notification had already been opened.
func (s *Store) MarkNotificationOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	q := s.db.Rebind(`UPDATE notifications SET opened_ms = ? WHERE id = ? AND opened_ms IS NULL`)
	res, err := s.db.ExecContext(ctx, q, toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("mark notification opened %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetNotification(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkNotificationConverted records a purchase. Converting implies opening,
// so a missing open time is filled in too.
func (s *Store) MarkNotificationConverted(ctx context.Context, id string, at time.Time, amount decimal.NullDecimal) error {
	if amount.Valid && amount.Decimal.IsNegative() {
		return fmt.Errorf("mark notification converted %s: negative purchase amount", id)
	}
	ms := toMillis(at)
	q := s.db.Rebind(`UPDATE notifications SET
  converted_ms = ?,
  purchase_amount = ?,
  opened_ms = COALESCE(opened_ms, ?)
WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, ms, amount, ms, id)
	if err != nil {
		return fmt.Errorf("mark notification converted %s: %w", id, err)
	}
	return requireAffected(res, "notification", id)
}
