package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/retailer"
	"joinpounce/internal/similarity"
)

const searchLimit = 50

type Store interface {
	SearchActiveByKeywords(ctx context.Context, keywords []string, exclude retailer.Retailer, limit int) ([]dao.Item, error)
}

// Searcher finds similar products among items other users already track.
// It spans every retailer; the finder drops the excluded one.
type Searcher struct {
	store Store
}

func NewSearcher(store *dao.Store) *Searcher {
	return &Searcher{store: store}
}

func (s *Searcher) Retailer() retailer.Retailer { return "" }

// Search scores each hit by the share of query keywords its name contains.
// Items tracked by several users collapse to one product per canonical URL.
func (s *Searcher) Search(ctx context.Context, q similarity.Query) ([]similarity.Product, error) {
	items, err := s.store.SearchActiveByKeywords(ctx, q.Keywords, "", searchLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]similarity.Product, 0, len(items))
	for _, it := range items {
		if !it.CurrentPrice.Valid {
			continue
		}
		if _, dup := seen[it.CanonicalURL]; dup {
			continue
		}
		seen[it.CanonicalURL] = struct{}{}

		price := it.CurrentPrice.Decimal
		out = append(out, similarity.Product{
			Retailer: it.Retailer,
			Name:     it.ProductName,
			Image:    it.ProductImage,
			Price:    &price,
			URL:      it.CanonicalURL,
			Score:    keywordScore(it.ProductName, q.Keywords),
		})
	}
	return out, nil
}

func keywordScore(name string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(name)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched++
		}
	}
	return decimal.NewFromInt(int64(matched)).
		DivRound(decimal.NewFromInt(int64(len(keywords))), 4).
		InexactFloat64()
}
