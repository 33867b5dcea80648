package items

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/normalizer"
	pkginngest "joinpounce/internal/pkg/inngest"
	"joinpounce/internal/pkg/webpage"
	"joinpounce/internal/pricing"
)

type Store interface {
	CreateItem(ctx context.Context, in dao.CreateItemInput) (dao.Item, error)
	GetItem(ctx context.Context, id string) (dao.Item, error)
	PriceHistory(ctx context.Context, itemID string, since time.Time) (pricing.History, error)
}

// Fetcher reads retailer pages. It is nil when FETCH_ENABLED is off.
type Fetcher interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
	FetchMeta(ctx context.Context, rawURL string) (webpage.Meta, error)
}

type HandlerParams struct {
	fx.In

	Cfg        *config.Config
	Normalizer *normalizer.Normalizer
	Web        *webpage.Client
	Store      *dao.Store
	Events     pkginngest.EventSender
	Logger     *zap.SugaredLogger
}

type deps struct {
	normalizer *normalizer.Normalizer
	fetcher    Fetcher
	store      Store
	events     pkginngest.EventSender
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func newDeps(p HandlerParams) deps {
	d := deps{
		normalizer: p.Normalizer,
		store:      p.Store,
		events:     p.Events,
		logger:     p.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if p.Cfg.Fetch.Enabled && p.Web != nil {
		d.fetcher = p.Web
	}
	return d
}

// normalize resolves redirects first when fetching is on. A failed resolve
// falls back to the submitted URL.
func (d deps) normalize(ctx context.Context, raw string) (normalizer.NormalizedURL, error) {
	if d.fetcher == nil {
		return d.normalizer.Normalize(raw)
	}
	n, err := d.normalizer.Normalize(raw)
	if err != nil {
		return n, err
	}
	resolved, err := d.fetcher.Resolve(ctx, n.Original)
	if err != nil {
		d.logger.Warnw("url_resolve_failed", "url", n.Original, "err", err)
		return n, nil
	}
	return d.normalizer.NormalizeResolved(n.Original, resolved)
}

// meta is best effort: a page that will not load still gets tracked.
func (d deps) meta(ctx context.Context, canonicalURL string) *webpage.Meta {
	if d.fetcher == nil {
		return nil
	}
	m, err := d.fetcher.FetchMeta(ctx, canonicalURL)
	if err != nil {
		d.logger.Warnw("product_meta_fetch_failed", "url", canonicalURL, "err", err)
		return nil
	}
	return &m
}
