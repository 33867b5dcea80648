package dao

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"joinpounce/db"
	"joinpounce/internal/normalizer"
	"joinpounce/internal/pricing"
	"joinpounce/internal/retailer"
)

type Item struct {
	ID            string                   `json:"id"`
	ListID        string                   `json:"list_id"`
	UserID        string                   `json:"user_id"`
	URL           string                   `json:"url"`
	CanonicalURL  string                   `json:"canonical_url"`
	Retailer      retailer.Retailer        `json:"retailer"`
	ProductName   string                   `json:"product_name"`
	ProductImage  string                   `json:"product_image,omitempty"`
	VariantParams normalizer.VariantParams `json:"variant_params"`
	OriginalPrice decimal.NullDecimal      `json:"original_price"`
	CurrentPrice  decimal.NullDecimal      `json:"current_price"`
	TargetPrice   decimal.NullDecimal      `json:"target_price"`
	Thresholds    pricing.Thresholds       `json:"alert_thresholds"`
	IsPrivate     bool                     `json:"is_private"`
	IsActive      bool                     `json:"is_active"`
	IsDead        bool                     `json:"is_dead"`
	LastCheckedAt *time.Time               `json:"last_checked,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

type itemRow struct {
	ID               string              `db:"id"`
	ListID           string              `db:"list_id"`
	UserID           string              `db:"user_id"`
	URL              string              `db:"url"`
	CanonicalURL     string              `db:"canonical_url"`
	Retailer         string              `db:"retailer"`
	ProductName      string              `db:"product_name"`
	ProductImage     string              `db:"product_image"`
	VariantParams    string              `db:"variant_params"`
	OriginalPrice    decimal.NullDecimal `db:"original_price"`
	CurrentPrice     decimal.NullDecimal `db:"current_price"`
	TargetPrice      decimal.NullDecimal `db:"target_price"`
	ThresholdPercent decimal.Decimal     `db:"alert_threshold_percent"`
	ThresholdAmount  decimal.Decimal     `db:"alert_threshold_amount"`
	IsPrivate        bool                `db:"is_private"`
	IsActive         bool                `db:"is_active"`
	IsDead           bool                `db:"is_dead"`
	LastCheckedMS    sql.NullInt64       `db:"last_checked_ms"`
	CreatedMS        int64               `db:"created_ms"`
	UpdatedMS        int64               `db:"updated_ms"`
}

const itemColumns = `id, list_id, user_id, url, canonical_url, retailer, product_name, product_image,
  variant_params, original_price, current_price, target_price, alert_threshold_percent,
  alert_threshold_amount, is_private, is_active, is_dead, last_checked_ms, created_ms, updated_ms`

func (r itemRow) toItem() (Item, error) {
	var variants normalizer.VariantParams
	if strings.TrimSpace(r.VariantParams) != "" {
		if err := json.Unmarshal([]byte(r.VariantParams), &variants); err != nil {
			return Item{}, fmt.Errorf("decode variant_params for item %s: %w", r.ID, err)
		}
	}
	if variants == nil {
		variants = normalizer.VariantParams{}
	}

	it := Item{
		ID:            r.ID,
		ListID:        r.ListID,
		UserID:        r.UserID,
		URL:           r.URL,
		CanonicalURL:  r.CanonicalURL,
		Retailer:      retailer.Retailer(r.Retailer),
		ProductName:   r.ProductName,
		ProductImage:  r.ProductImage,
		VariantParams: variants,
		OriginalPrice: r.OriginalPrice,
		CurrentPrice:  r.CurrentPrice,
		TargetPrice:   r.TargetPrice,
		Thresholds:    pricing.Thresholds{Percent: r.ThresholdPercent, Amount: r.ThresholdAmount},
		IsPrivate:     r.IsPrivate,
		IsActive:      r.IsActive,
		IsDead:        r.IsDead,
		CreatedAt:     fromMillis(r.CreatedMS),
		UpdatedAt:     fromMillis(r.UpdatedMS),
	}
	if r.LastCheckedMS.Valid {
		t := fromMillis(r.LastCheckedMS.Int64)
		it.LastCheckedAt = &t
	}
	return it, nil
}

type CreateItemInput struct {
	ListID        string                   `validate:"required"`
	UserID        string                   `validate:"required"`
	URL           string                   `validate:"required"`
	CanonicalURL  string                   `validate:"required,url"`
	Retailer      retailer.Retailer        `validate:"required"`
	ProductName   string                   `validate:"max=512"`
	ProductImage  string                   `validate:"omitempty,url"`
	VariantParams normalizer.VariantParams
	CurrentPrice  decimal.NullDecimal
	TargetPrice   decimal.NullDecimal

	// Unset limits take the store defaults. Zero is a valid limit.
	ThresholdPercent decimal.NullDecimal
	ThresholdAmount  decimal.NullDecimal
	IsPrivate        bool
}

func (s *Store) CreateItem(ctx context.Context, in CreateItemInput) (Item, error) {
	if err := s.validator.Struct(in); err != nil {
		return Item{}, fmt.Errorf("validate item: %w", err)
	}
	if !in.Retailer.Valid() {
		return Item{}, fmt.Errorf("validate item: unsupported retailer %q", in.Retailer)
	}
	th := pricing.WithDefaults(in.ThresholdPercent, in.ThresholdAmount, s.defaults)
	if err := th.Validate(); err != nil {
		return Item{}, fmt.Errorf("validate item: %w", err)
	}

	variants := in.VariantParams
	if variants == nil {
		variants = normalizer.VariantParams{}
	}
	variantJSON, err := json.Marshal(variants)
	if err != nil {
		return Item{}, fmt.Errorf("encode variant_params: %w", err)
	}

	now := toMillis(s.now())
	row := itemRow{
		ID:               uuid.NewString(),
		ListID:           in.ListID,
		UserID:           in.UserID,
		URL:              in.URL,
		CanonicalURL:     in.CanonicalURL,
		Retailer:         string(in.Retailer),
		ProductName:      strings.TrimSpace(in.ProductName),
		ProductImage:     in.ProductImage,
		VariantParams:    string(variantJSON),
		OriginalPrice:    in.CurrentPrice,
		CurrentPrice:     in.CurrentPrice,
		TargetPrice:      in.TargetPrice,
		ThresholdPercent: th.Percent,
		ThresholdAmount:  th.Amount,
		IsPrivate:        in.IsPrivate,
		IsActive:         true,
		CreatedMS:        now,
		UpdatedMS:        now,
	}

	q := s.db.Rebind(`
INSERT INTO items (` + itemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if _, err := s.db.ExecContext(ctx, q,
		row.ID, row.ListID, row.UserID, row.URL, row.CanonicalURL, row.Retailer,
		row.ProductName, row.ProductImage, row.VariantParams,
		row.OriginalPrice, row.CurrentPrice, row.TargetPrice,
		row.ThresholdPercent, row.ThresholdAmount,
		row.IsPrivate, row.IsActive, row.IsDead, row.LastCheckedMS,
		row.CreatedMS, row.UpdatedMS,
	); err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}

	s.logger.Infow("item_created",
		"id", row.ID,
		"user_id", row.UserID,
		"retailer", row.Retailer,
		"canonical_url", row.CanonicalURL,
	)
	return row.toItem()
}

func (s *Store) GetItem(ctx context.Context, id string) (Item, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q sqlx.ExtContext, id string) (Item, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+itemColumns+` FROM items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return row.toItem()
}

// ListActiveItems pages through items that are still being monitored, oldest
// first.
func (s *Store) ListActiveItems(ctx context.Context, limit, offset int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var rows []itemRow
	q := s.db.Rebind(`SELECT ` + itemColumns + ` FROM items
WHERE is_active = ?
ORDER BY created_ms, id
LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, q, true, limit, offset); err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	return toItems(rows)
}

// SearchActiveByKeywords returns active items whose product name contains at
// least one keyword, skipping the excluded retailer.
func (s *Store) SearchActiveByKeywords(ctx context.Context, keywords []string, exclude retailer.Retailer, limit int) ([]Item, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	conds := make([]string, 0, len(keywords))
	args := []any{true, string(exclude)}
	for _, kw := range keywords {
		conds = append(conds, "lower(product_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}
	args = append(args, limit)

	q := s.db.Rebind(`SELECT ` + itemColumns + ` FROM items
WHERE is_active = ? AND retailer <> ? AND current_price IS NOT NULL AND (` + strings.Join(conds, " OR ") + `)
ORDER BY updated_ms DESC
LIMIT ?`)

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	return toItems(rows)
}

// UpdateProductMeta fills in name, image and price read from the product
// page. Empty fields leave the stored value alone.
func (s *Store) UpdateProductMeta(ctx context.Context, id, name, image string) error {
	q := s.db.Rebind(`
UPDATE items SET
  product_name = CASE WHEN ? <> '' THEN ? ELSE product_name END,
  product_image = CASE WHEN ? <> '' THEN ? ELSE product_image END,
  updated_ms = ?
WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, name, name, image, image, toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("update item meta %s: %w", id, err)
	}
	return requireAffected(res, "item", id)
}

// MarkDead archives the item: it stops being monitored and is flagged dead.
// Archiving an already dead item is a no-op.
func (s *Store) MarkDead(ctx context.Context, id string) (Item, error) {
	return db.Tx(ctx, s.db, func(tx *sqlx.Tx) (Item, error) {
		it, err := getItem(ctx, tx, id)
		if err != nil {
			return Item{}, err
		}
		if it.IsDead && !it.IsActive {
			return it, nil
		}

		now := s.now()
		q := tx.Rebind(`UPDATE items SET is_active = ?, is_dead = ?, updated_ms = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, q, false, true, toMillis(now), id); err != nil {
			return Item{}, fmt.Errorf("archive item %s: %w", id, err)
		}

		it.IsActive = false
		it.IsDead = true
		it.UpdatedAt = fromMillis(toMillis(now))
		s.logger.Infow("item_archived_dead", "id", id, "retailer", it.Retailer)
		return it, nil
	})
}

func toItems(rows []itemRow) ([]Item, error) {
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		it, err := r.toItem()
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
