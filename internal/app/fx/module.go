package fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/affiliate"
	"joinpounce/internal/app/catalog"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/normalizer"
	"joinpounce/internal/pkg/webpage"
	"joinpounce/internal/retailer"
	"joinpounce/internal/similarity"
)

// Module provides the decision core and the item store. It expects a
// *sqlx.DB from db/fx.
var Module = fx.Module(
	"pounce-core",
	fx.Provide(
		NewNormalizer,
		NewInjector,
		NewTracker,
		webpage.NewClient,
		dao.NewStore,
		catalog.NewSearcher,
		NewFinder,
	),
)

func NewNormalizer() *normalizer.Normalizer {
	return normalizer.New(normalizer.DefaultTables())
}

func NewInjector(cfg *config.Config) *affiliate.Injector {
	return affiliate.NewInjector(affiliate.DefaultTags(map[retailer.Retailer]string{
		retailer.Amazon:  cfg.Affiliate.AmazonTag,
		retailer.Target:  cfg.Affiliate.TargetID,
		retailer.Walmart: cfg.Affiliate.WalmartID,
		retailer.BestBuy: cfg.Affiliate.BestBuyID,
		retailer.Wayfair: cfg.Affiliate.WayfairID,
	}))
}

func NewTracker(cfg *config.Config) *affiliate.Tracker {
	return affiliate.NewTracker(cfg.AppURL)
}

func NewFinder(s *catalog.Searcher, injector *affiliate.Injector, log *zap.SugaredLogger) *similarity.Finder {
	return similarity.NewFinder([]similarity.Searcher{s}, similarity.DefaultExtractor(), injector, log)
}
