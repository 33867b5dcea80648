package similarity

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"joinpounce/internal/affiliate"
	"joinpounce/internal/retailer"
)

const MaxResults = 3

var windowSpread = decimal.RequireFromString("0.2")

// PriceWindow is an inclusive price range.
type PriceWindow struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// WindowAround returns price ±20%.
func WindowAround(price decimal.Decimal) PriceWindow {
	delta := price.Mul(windowSpread)
	return PriceWindow{Min: price.Sub(delta), Max: price.Add(delta)}
}

func (w PriceWindow) Contains(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(w.Min) && p.LessThanOrEqual(w.Max)
}

type Product struct {
	Retailer     retailer.Retailer `json:"retailer"`
	Name         string            `json:"product_name"`
	Image        string            `json:"product_image,omitempty"`
	Price        *decimal.Decimal  `json:"current_price,omitempty"`
	URL          string            `json:"url"`
	AffiliateURL string            `json:"affiliate_url"`
	Score        float64           `json:"similarity_score"`
}

type Query struct {
	Keywords []string
	Window   PriceWindow
}

// Searcher looks up candidate products at one retailer.
type Searcher interface {
	Retailer() retailer.Retailer
	Search(ctx context.Context, q Query) ([]Product, error)
}

type Finder struct {
	searchers []Searcher
	extractor *Extractor
	injector  *affiliate.Injector
	log       *zap.SugaredLogger
}

func NewFinder(searchers []Searcher, extractor *Extractor, injector *affiliate.Injector, log *zap.SugaredLogger) *Finder {
	if extractor == nil {
		extractor = DefaultExtractor()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Finder{searchers: searchers, extractor: extractor, injector: injector, log: log}
}

// FindSimilar searches every retailer except exclude for products priced
// within ±20% of originalPrice and returns the best MaxResults by score.
// A failing searcher is logged and skipped; cancelling ctx stops every
// search still in flight and returns the context error.
func (f *Finder) FindSimilar(ctx context.Context, name string, originalPrice decimal.Decimal, exclude retailer.Retailer) ([]Product, error) {
	keywords := f.extractor.Extract(name)
	if len(keywords) == 0 || !originalPrice.IsPositive() {
		return []Product{}, nil
	}
	q := Query{Keywords: keywords, Window: WindowAround(originalPrice)}

	f.log.Infow("similarity_search",
		"keywords", keywords,
		"price_min", q.Window.Min.StringFixed(2),
		"price_max", q.Window.Max.StringFixed(2),
		"excluded_retailer", exclude,
	)

	results := make([][]Product, len(f.searchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range f.searchers {
		if s.Retailer() == exclude {
			continue
		}
		g.Go(func() error {
			found, err := s.Search(gctx, q)
			switch {
			case err == nil:
				results[i] = found
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				f.log.Warnw("similarity_search_failed", "retailer", s.Retailer(), "err", err)
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Product
	for _, batch := range results {
		for _, p := range batch {
			if p.Retailer == exclude || p.Price == nil || !q.Window.Contains(*p.Price) {
				continue
			}
			p.Score = clampScore(p.Score)
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}

	for i := range out {
		if f.injector == nil {
			out[i].AffiliateURL = out[i].URL
			continue
		}
		res := f.injector.Inject(out[i].URL, out[i].Retailer)
		if res.Status == affiliate.StatusNoTag {
			f.log.Warnw("affiliate_tag_missing", "retailer", out[i].Retailer)
		}
		out[i].AffiliateURL = res.URL
	}
	if out == nil {
		out = []Product{}
	}
	return out, nil
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
