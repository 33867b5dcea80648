package pricecheck

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/app/notify"
	"joinpounce/internal/pricing"
)

type Store interface {
	GetItem(ctx context.Context, id string) (dao.Item, error)
	PriceHistory(ctx context.Context, itemID string, since time.Time) (pricing.History, error)
	AppendObservation(ctx context.Context, obs pricing.Observation) (dao.AppendResult, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, a notify.PendingAlert) error
}

// Result describes what one observation did.
type Result struct {
	Appended    bool   `json:"appended"`
	Significant bool   `json:"significant"`
	NewLow      bool   `json:"new_low"`
	Scheduled   bool   `json:"scheduled"`
	Skipped     string `json:"skipped,omitempty"`
}

const lockStripes = 64

// itemLocks serializes work per item id. Unrelated items may share a stripe.
type itemLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *itemLocks) lock(itemID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(itemID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

type PriceCheckHandler struct {
	store        Store
	scheduler    Scheduler
	lowWindow    time.Duration
	confirmDelay time.Duration
	locks        *itemLocks
	logger       *zap.SugaredLogger
}

type NewPriceCheckHandlerParams struct {
	fx.In

	Cfg    *config.Config
	Store  *dao.Store
	Queue  *notify.Queue
	Logger *zap.SugaredLogger
}

func NewPriceCheckHandler(p NewPriceCheckHandlerParams) *PriceCheckHandler {
	var sched Scheduler
	if p.Queue.Enabled() {
		sched = p.Queue
	}
	return &PriceCheckHandler{
		store:     p.Store,
		scheduler: sched,
		lowWindow:    p.Cfg.Alerts.LowWindow,
		confirmDelay: p.Cfg.Alerts.ConfirmDelay,
		locks:        &itemLocks{},
		logger:       p.Logger,
	}
}

func (h *PriceCheckHandler) Handle(ctx context.Context, msg PriceObservedEnvelope) error {
	if name := strings.TrimSpace(msg.EventName); name != "" && name != EventPricesObserved {
		return fmt.Errorf("unexpected event_name: %s", msg.EventName)
	}
	res, err := h.Check(ctx, msg.Data.Observation())
	if err != nil {
		return err
	}
	h.logger.Infow("price_observed",
		"event_id", msg.EventID,
		"item_id", msg.Data.ItemID,
		"price", msg.Data.Price,
		"in_stock", msg.Data.InStock,
		"significant", res.Significant,
		"new_low", res.NewLow,
		"scheduled", res.Scheduled,
		"skipped", res.Skipped,
	)
	return nil
}

// Check records one observation and schedules an alert when it is both a
// significant drop from the previous price and the lowest price in the
// look-back window. Observations for unknown, archived or already-newer
// items are skipped without error.
func (h *PriceCheckHandler) Check(ctx context.Context, obs pricing.Observation) (Result, error) {
	if strings.TrimSpace(obs.ItemID) == "" {
		return Result{}, errors.New("missing item_id")
	}
	if obs.Price.IsNegative() {
		return Result{}, fmt.Errorf("item %s: %w", obs.ItemID, pricing.ErrInvalidPrice)
	}
	if obs.CheckedAt.IsZero() {
		return Result{}, fmt.Errorf("item %s: missing checked_at", obs.ItemID)
	}

	unlock := h.locks.lock(obs.ItemID)
	defer unlock()

	it, err := h.store.GetItem(ctx, obs.ItemID)
	if errors.Is(err, dao.ErrNotFound) {
		return Result{Skipped: "unknown_item"}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if !it.IsActive || it.IsDead {
		return Result{Skipped: "inactive"}, nil
	}

	window := h.lowWindow
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	history, err := h.store.PriceHistory(ctx, it.ID, obs.CheckedAt.Add(-window))
	if err != nil {
		return Result{}, err
	}

	appended, err := h.store.AppendObservation(ctx, obs)
	switch {
	case errors.Is(err, dao.ErrStaleObservation):
		return Result{Skipped: "stale"}, nil
	case errors.Is(err, dao.ErrDuplicateObservation):
		return Result{Skipped: "duplicate"}, nil
	case errors.Is(err, dao.ErrItemInactive):
		return Result{Skipped: "inactive"}, nil
	case err != nil:
		return Result{}, err
	}

	res := Result{Appended: true}
	if !obs.InStock {
		res.Skipped = "out_of_stock"
		return res, nil
	}
	previous := appended.Before.CurrentPrice
	if !previous.Valid {
		res.Skipped = "first_price"
		return res, nil
	}

	sig, err := pricing.IsSignificantDrop(previous.Decimal, obs.Price, it.Thresholds)
	if err != nil {
		res.Skipped = "invalid_previous_price"
		return res, nil
	}
	res.Significant = sig
	res.NewLow = pricing.IsNewLow(history, obs.Price, obs.CheckedAt, window)
	if !res.Significant || !res.NewLow {
		return res, nil
	}

	if h.scheduler == nil {
		h.logger.Infow("alert_scheduling_disabled", "item_id", it.ID, "reason", "missing redis")
		res.Skipped = "scheduler_disabled"
		return res, nil
	}

	delay := h.confirmDelay
	if delay <= 0 {
		delay = 2 * time.Hour
	}
	alert := notify.PendingAlert{
		ItemID:      it.ID,
		UserID:      it.UserID,
		PriceBefore: previous.Decimal,
		PriceAfter:  obs.Price,
		ObservedAt:  obs.CheckedAt,
		DueAt:       obs.CheckedAt.Add(delay),
	}
	if err := h.scheduler.Schedule(ctx, alert); err != nil {
		return res, fmt.Errorf("schedule alert for item %s: %w", it.ID, err)
	}
	res.Scheduled = true
	return res, nil
}
