package webpage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// Meta is what a product page says about itself in its head tags.
type Meta struct {
	URL      string           `json:"url"`
	Title    string           `json:"title,omitempty"`
	Image    string           `json:"image,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

var (
	titleSelectors = []string{`meta[property="og:title"]`, `meta[name="twitter:title"]`}
	imageSelectors = []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`}
	priceSelectors = []string{
		`meta[property="product:price:amount"]`,
		`meta[property="og:price:amount"]`,
		`meta[itemprop="price"]`,
	}
	currencySelectors = []string{
		`meta[property="product:price:currency"]`,
		`meta[property="og:price:currency"]`,
		`meta[itemprop="priceCurrency"]`,
	}
)

func (c *Client) FetchMeta(ctx context.Context, rawURL string) (Meta, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return Meta{}, fmt.Errorf("fetch meta %s: %w", rawURL, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Meta{}, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	m, err := ParseMeta(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Meta{}, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	m.URL = finalURL(resp, rawURL)
	return m, nil
}

// ParseMeta reads Open Graph and product meta tags from an HTML document.
// Missing tags leave fields empty; <title> is the fallback for the name.
func ParseMeta(r io.Reader) (Meta, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Meta{}, err
	}

	var m Meta
	m.Title = firstContent(doc, titleSelectors)
	if m.Title == "" {
		m.Title = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	}
	m.Image = firstContent(doc, imageSelectors)
	m.Currency = strings.ToUpper(firstContent(doc, currencySelectors))
	if p, ok := parsePrice(firstContent(doc, priceSelectors)); ok {
		m.Price = &p
	}
	return m, nil
}

func firstContent(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = strings.TrimSpace(s.AttrOr("content", ""))
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

// parsePrice accepts "1,299.99", "$24.50" and "24.5". Negative or
// unparseable values are ignored.
func parsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
