package dao

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/db"
	"joinpounce/internal/pricing"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleObservation rejects a price observation older than the item's
	// last check, which would reorder its history.
	ErrStaleObservation = errors.New("observation older than last check")
	ErrItemInactive     = errors.New("item is archived")

	// ErrDuplicateObservation marks a redelivered observation whose row is
	// already in the history.
	ErrDuplicateObservation = errors.New("observation already recorded")
)

// Store persists items, their price history and notifications. Items are
// archived, never deleted.
type Store struct {
	db        *sqlx.DB
	backend   db.Backend
	logger    *zap.SugaredLogger
	validator *validator.Validate
	defaults  pricing.Thresholds
	now       func() time.Time
}

type NewStoreParams struct {
	fx.In

	DB      *sqlx.DB
	Backend db.Backend
	Cfg     *config.Config `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewStore(p NewStoreParams) *Store {
	defaults := pricing.DefaultThresholds()
	if p.Cfg != nil {
		defaults = pricing.Thresholds{Percent: p.Cfg.Alerts.ThresholdPercent, Amount: p.Cfg.Alerts.ThresholdAmount}
	}
	return &Store{
		db:        p.DB,
		backend:   p.Backend,
		logger:    p.Logger,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		defaults:  defaults,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a real database backs the store.
func (s *Store) Enabled() bool {
	return s.db != nil && s.backend != db.BackendDisabled
}

func (s *Store) Backend() db.Backend { return s.backend }

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}
