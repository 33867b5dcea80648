// Package clicks serves affiliate links and records what users do with them.
package clicks

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/internal/affiliate"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/normalizer"
)

type NotificationStore interface {
	MarkNotificationOpened(ctx context.Context, id string, at time.Time) (bool, error)
}

type HandlerParams struct {
	fx.In

	Normalizer *normalizer.Normalizer
	Injector   *affiliate.Injector
	Store      *dao.Store
	Logger     *zap.SugaredLogger
}

type deps struct {
	normalizer *normalizer.Normalizer
	injector   *affiliate.Injector
	store      NotificationStore
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func newDeps(p HandlerParams) deps {
	return deps{
		normalizer: p.Normalizer,
		injector:   p.Injector,
		store:      p.Store,
		logger:     p.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// markOpened never blocks the click it came from: failures are logged.
func (d deps) markOpened(ctx context.Context, notificationID string) {
	if notificationID == "" {
		return
	}
	first, err := d.store.MarkNotificationOpened(ctx, notificationID, d.now())
	if err != nil {
		d.logger.Warnw("notification_open_failed", "notification_id", notificationID, "err", err)
		return
	}
	if first {
		d.logger.Infow("notification_opened", "notification_id", notificationID)
	}
}
