package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/affiliate"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/pricing"
)

type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeNotHeld     Outcome = "not_held"
	OutcomeInactive    Outcome = "inactive"
	OutcomeRateLimited Outcome = "rate_limited"
)

// MaxDispatchAttempts bounds how often a failed alert is put back on the
// schedule before it is dropped.
const MaxDispatchAttempts = 3

type AlertQueue interface {
	Schedule(ctx context.Context, a PendingAlert) error
	Due(ctx context.Context, now time.Time, limit int) ([]PendingAlert, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, userID string, now time.Time) (bool, error)
	Release(ctx context.Context, userID string, now time.Time) error
}

type Store interface {
	GetItem(ctx context.Context, id string) (dao.Item, error)
	PriceHistory(ctx context.Context, itemID string, since time.Time) (pricing.History, error)
	CreateNotification(ctx context.Context, in dao.CreateNotificationInput) (dao.Notification, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) error
}

type Stats struct {
	Claimed int
	Sent    int
	Skipped int
	Failed  int
}

// Dispatcher turns due alerts into notifications once the drop has held
// through the confirmation delay.
type Dispatcher struct {
	queue    AlertQueue
	limiter  RateLimiter
	store    Store
	injector *affiliate.Injector
	tracker  *affiliate.Tracker
	pusher   Pusher
	interval time.Duration
	batch    int
	logger   *zap.SugaredLogger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

type NewDispatcherParams struct {
	fx.In

	Config   *config.Config
	Queue    *Queue
	Limiter  *Limiter
	Store    *dao.Store
	Injector *affiliate.Injector
	Tracker  *affiliate.Tracker
	Pusher   Pusher
	Logger   *zap.SugaredLogger
}

func NewDispatcher(p NewDispatcherParams) *Dispatcher {
	var queue AlertQueue
	var limiter RateLimiter
	if p.Queue.Enabled() {
		queue, limiter = p.Queue, p.Limiter
	}
	return &Dispatcher{
		queue:    queue,
		limiter:  limiter,
		store:    p.Store,
		injector: p.Injector,
		tracker:  p.Tracker,
		pusher:   p.Pusher,
		interval: p.Config.Alerts.DispatchInterval,
		batch:    p.Config.Alerts.DispatchBatchSize,
		logger:   p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DispatchDue claims every alert due now and tries to deliver it. One bad
// alert does not stop the batch.
func (d *Dispatcher) DispatchDue(ctx context.Context) (Stats, error) {
	var st Stats
	if d.queue == nil {
		return st, ErrQueueDisabled
	}

	now := d.now()
	alerts, err := d.queue.Due(ctx, now, d.batch)
	st.Claimed = len(alerts)
	for _, a := range alerts {
		outcome, derr := d.Dispatch(ctx, a, now)
		switch {
		case derr != nil:
			st.Failed++
			d.logger.Errorw("alert_dispatch_failed", "item_id", a.ItemID, "user_id", a.UserID, "attempt", a.Attempts+1, "err", derr)
			d.retry(ctx, a, now)
		case outcome == OutcomeSent:
			st.Sent++
		default:
			st.Skipped++
			d.logger.Infow("alert_skipped", "item_id", a.ItemID, "user_id", a.UserID, "outcome", outcome)
		}
	}
	return st, err
}

// retry puts a failed alert back on the schedule one interval out. A newer
// alert already scheduled for the item takes precedence.
func (d *Dispatcher) retry(ctx context.Context, a PendingAlert, now time.Time) {
	if a.Attempts+1 >= MaxDispatchAttempts {
		d.logger.Errorw("alert_dropped", "item_id", a.ItemID, "user_id", a.UserID, "attempts", a.Attempts+1)
		return
	}
	delay := d.interval
	if delay <= 0 {
		delay = time.Minute
	}
	a.Attempts++
	a.DueAt = now.Add(delay)
	if err := d.queue.Schedule(ctx, a); err != nil {
		d.logger.Errorw("alert_requeue_failed", "item_id", a.ItemID, "user_id", a.UserID, "err", err)
	}
}

// notificationID is stable per alert so a retried dispatch reuses the row
// created by the failed attempt.
func notificationID(a PendingAlert) string {
	key := fmt.Sprintf("%s:%d", a.ItemID, a.ObservedAt.UnixMilli())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("pounce:alert:"+key)).String()
}

// Dispatch re-checks one alert against the item's current state and, if the
// drop held, records and pushes the notification. The user's daily slot is
// only kept once the push succeeds.
func (d *Dispatcher) Dispatch(ctx context.Context, a PendingAlert, now time.Time) (outcome Outcome, err error) {
	it, err := d.store.GetItem(ctx, a.ItemID)
	if errors.Is(err, dao.ErrNotFound) {
		return OutcomeInactive, nil
	}
	if err != nil {
		return "", err
	}
	if !it.IsActive || it.IsDead {
		return OutcomeInactive, nil
	}

	current, held, err := d.held(ctx, it, a)
	if err != nil {
		return "", err
	}
	if !held {
		return OutcomeNotHeld, nil
	}

	if d.limiter != nil {
		ok, aerr := d.limiter.Allow(ctx, it.UserID, now)
		if aerr != nil {
			return "", aerr
		}
		if !ok {
			return OutcomeRateLimited, nil
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := d.limiter.Release(ctx, it.UserID, now); rerr != nil {
				d.logger.Warnw("alert_slot_release_failed", "user_id", it.UserID, "err", rerr)
			}
		}()
	}

	res := d.injector.Inject(it.CanonicalURL, it.Retailer)
	if res.Status != affiliate.StatusTagged {
		d.logger.Warnw("affiliate_tag_missing", "item_id", it.ID, "retailer", it.Retailer, "status", res.Status, "err", res.Err)
	}

	n, err := d.store.CreateNotification(ctx, dao.CreateNotificationInput{
		ID:           notificationID(a),
		UserID:       it.UserID,
		ItemID:       it.ID,
		Type:         dao.NotificationPriceDrop,
		PriceBefore:  decimal.NewNullDecimal(a.PriceBefore),
		PriceAfter:   decimal.NewNullDecimal(current),
		AffiliateURL: res.URL,
	})
	if err != nil {
		return "", err
	}

	msg := priceDropMessage(it, n, a.PriceBefore, current)
	msg.URL = d.tracker.BuildTrackingURL(n.ID, res.URL)
	if err := d.pusher.Push(ctx, msg); err != nil {
		return "", fmt.Errorf("push notification %s: %w", n.ID, err)
	}
	if err := d.store.MarkNotificationSent(ctx, n.ID, now); err != nil {
		d.logger.Errorw("notification_mark_sent_failed", "notification_id", n.ID, "err", err)
	}

	d.logger.Infow("price_drop_notified", "notification_id", n.ID, "item_id", it.ID, "user_id", it.UserID, "before", a.PriceBefore, "after", current)
	return OutcomeSent, nil
}

// held reports whether the drop survived the delay: the item is still priced
// at or below the alerted price, the latest reading is in stock and the drop
// from the pre-alert price is still significant.
func (d *Dispatcher) held(ctx context.Context, it dao.Item, a PendingAlert) (decimal.Decimal, bool, error) {
	if !it.CurrentPrice.Valid {
		return decimal.Decimal{}, false, nil
	}
	current := it.CurrentPrice.Decimal
	if current.GreaterThan(a.PriceAfter) {
		return current, false, nil
	}

	h, err := d.store.PriceHistory(ctx, it.ID, a.ObservedAt)
	if err != nil {
		return current, false, err
	}
	if last, ok := h.Latest(); ok && !last.InStock {
		return current, false, nil
	}

	sig, err := pricing.IsSignificantDrop(a.PriceBefore, current, it.Thresholds)
	if err != nil {
		return current, false, nil
	}
	return current, sig, nil
}

func priceDropMessage(it dao.Item, n dao.Notification, before, after decimal.Decimal) Message {
	name := it.ProductName
	if name == "" {
		name = "An item on your list"
	}
	body := fmt.Sprintf("Now $%s (was $%s)", after.StringFixed(2), before.StringFixed(2))
	if drop, err := pricing.ComputeDrop(before, after); err == nil && drop.IsDrop() {
		body += fmt.Sprintf(", %s%% off", drop.Percent.Round(0).String())
	}
	return Message{
		NotificationID: n.ID,
		UserID:         it.UserID,
		ItemID:         it.ID,
		Type:           dao.NotificationPriceDrop,
		Title:          "Price drop: " + name,
		Body:           body,
	}
}

// Start runs DispatchDue on a ticker until Stop.
func (d *Dispatcher) Start(_ context.Context) error {
	if d.queue == nil {
		d.logger.Infow("alert_dispatcher_disabled", "reason", "missing redis")
		return nil
	}
	interval := d.interval
	if interval <= 0 {
		interval = time.Minute
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-t.C:
				st, err := d.DispatchDue(runCtx)
				if err != nil && !errors.Is(err, context.Canceled) {
					d.logger.Errorw("alert_dispatch_batch_failed", "err", err)
				}
				if st.Claimed > 0 {
					d.logger.Infow("alert_dispatch_batch", "claimed", st.Claimed, "sent", st.Sent, "skipped", st.Skipped, "failed", st.Failed)
				}
			}
		}
	}()

	d.logger.Infow("alert_dispatcher_started", "interval", interval.String(), "batch", d.batch)
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
