package deadlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/internal/affiliate"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/app/notify"
	"joinpounce/internal/retailer"
	"joinpounce/internal/similarity"
)

type Store interface {
	MarkDead(ctx context.Context, id string) (dao.Item, error)
	CreateNotification(ctx context.Context, in dao.CreateNotificationInput) (dao.Notification, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) error
}

type SimilarFinder interface {
	FindSimilar(ctx context.Context, name string, originalPrice decimal.Decimal, exclude retailer.Retailer) ([]similarity.Product, error)
}

// Function archives a dead item, looks for replacements and tells the
// owner. Each stage is an Inngest step so a retry resumes where it failed.
type Function struct {
	store   Store
	finder  SimilarFinder
	tracker *affiliate.Tracker
	pusher  notify.Pusher
	logger  *zap.SugaredLogger
	now     func() time.Time
}

type NewFunctionParams struct {
	fx.In

	Store   *dao.Store
	Finder  *similarity.Finder
	Tracker *affiliate.Tracker
	Pusher  notify.Pusher
	Logger  *zap.SugaredLogger
}

func NewFunction(p NewFunctionParams) *Function {
	return &Function{
		store:   p.Store,
		finder:  p.Finder,
		tracker: p.Tracker,
		pusher:  p.Pusher,
		logger:  p.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type Result struct {
	ItemID         string `json:"item_id"`
	NotificationID string `json:"notification_id"`
	Suggestions    int    `json:"suggestions"`
}

func (f *Function) Handle(ctx context.Context, input inngestgo.Input[DeadDetectedEventData]) (any, error) {
	itemID := strings.TrimSpace(input.Event.Data.ItemID)
	if itemID == "" {
		return nil, inngestgo.NoRetryError(fmt.Errorf("missing item_id"))
	}

	item, err := step.Run(ctx, "archive-item", func(ctx context.Context) (dao.Item, error) {
		it, err := f.Archive(ctx, itemID)
		if errors.Is(err, dao.ErrNotFound) {
			return dao.Item{}, inngestgo.NoRetryError(err)
		}
		return it, err
	})
	if err != nil {
		return nil, err
	}

	suggestions, err := step.Run(ctx, "find-similar", func(ctx context.Context) ([]similarity.Product, error) {
		return f.FindSimilar(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	n, err := step.Run(ctx, "record-notification", func(ctx context.Context) (dao.Notification, error) {
		return f.Record(ctx, item, suggestions)
	})
	if err != nil {
		return nil, err
	}

	if _, err := step.Run(ctx, "push", func(ctx context.Context) (bool, error) {
		return true, f.Push(ctx, item, n, suggestions)
	}); err != nil {
		return nil, err
	}

	f.logger.Infow("dead_link_handled",
		"item_id", itemID,
		"reason", input.Event.Data.Reason,
		"source", input.Event.Data.Source,
		"notification_id", n.ID,
		"suggestions", len(suggestions),
	)
	return Result{ItemID: itemID, NotificationID: n.ID, Suggestions: len(suggestions)}, nil
}

func (f *Function) Archive(ctx context.Context, itemID string) (dao.Item, error) {
	it, err := f.store.MarkDead(ctx, itemID)
	if err != nil {
		f.logger.Errorw("inngest_step_failed", "step", "archive-item", "item_id", itemID, "err", err)
		return dao.Item{}, err
	}
	return it, nil
}

// FindSimilar searches other retailers around the price the user last saw.
// A failed search degrades to no suggestions.
func (f *Function) FindSimilar(ctx context.Context, it dao.Item) ([]similarity.Product, error) {
	basis := it.CurrentPrice
	if !basis.Valid {
		basis = it.OriginalPrice
	}
	if !basis.Valid || f.finder == nil {
		return []similarity.Product{}, nil
	}

	found, err := f.finder.FindSimilar(ctx, it.ProductName, basis.Decimal, it.Retailer)
	if err != nil {
		f.logger.Warnw("inngest_step_failed", "step", "find-similar", "item_id", it.ID, "err", err)
		return []similarity.Product{}, nil
	}
	return found, nil
}

func (f *Function) Record(ctx context.Context, it dao.Item, suggestions []similarity.Product) (dao.Notification, error) {
	in := dao.CreateNotificationInput{
		ID:          uuid.NewString(),
		UserID:      it.UserID,
		ItemID:      it.ID,
		Type:        dao.NotificationDeadLink,
		PriceBefore: it.CurrentPrice,
	}
	if len(suggestions) > 0 {
		in.AffiliateURL = suggestions[0].AffiliateURL
		if suggestions[0].Price != nil {
			in.PriceAfter = decimal.NewNullDecimal(*suggestions[0].Price)
		}
	}
	return f.store.CreateNotification(ctx, in)
}

func (f *Function) Push(ctx context.Context, it dao.Item, n dao.Notification, suggestions []similarity.Product) error {
	msg := deadLinkMessage(it, n, suggestions)
	if n.AffiliateURL != "" && f.tracker != nil {
		msg.URL = f.tracker.BuildTrackingURL(n.ID, n.AffiliateURL)
	}
	if err := f.pusher.Push(ctx, msg); err != nil {
		return fmt.Errorf("push notification %s: %w", n.ID, err)
	}
	return f.store.MarkNotificationSent(ctx, n.ID, f.now())
}

func deadLinkMessage(it dao.Item, n dao.Notification, suggestions []similarity.Product) notify.Message {
	name := it.ProductName
	if name == "" {
		name = "An item on your list"
	}
	body := "We couldn't find a replacement yet."
	switch len(suggestions) {
	case 0:
	case 1:
		body = "We found 1 similar product."
	default:
		body = fmt.Sprintf("We found %d similar products.", len(suggestions))
	}
	return notify.Message{
		NotificationID: n.ID,
		UserID:         it.UserID,
		ItemID:         it.ID,
		Type:           dao.NotificationDeadLink,
		Title:          "No longer available: " + name,
		Body:           body,
		Suggestions:    suggestions,
	}
}
