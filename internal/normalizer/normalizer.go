package normalizer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"joinpounce/internal/pkg/queryparams"
	"joinpounce/internal/retailer"
)

var ErrInvalidURL = errors.New("invalid URL")

type NormalizedURL struct {
	Original       string            `json:"original_url"`
	Resolved       string            `json:"resolved_url"`
	Canonical      string            `json:"canonical_url"`
	Retailer       retailer.Retailer `json:"retailer"`
	IsSupported    bool              `json:"is_supported"`
	VariantParams  VariantParams     `json:"variant_params"`
	StrippedParams []string          `json:"tracking_params_stripped"`
}

// Tables holds the lookup data the normalizer runs against.
type Tables struct {
	Retailers     retailer.Table
	StripParams   []string
	StripPrefixes []string
	VariantKeys   map[retailer.Retailer][]string
}

func DefaultTables() Tables {
	return Tables{
		Retailers: retailer.DefaultTable(),
		StripParams: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"ref", "tag", "affiliate", "source", "fbclid", "gclid", "mc_eid", "_ga",
			"mkwid", "pcrid", "pdv", "rkg_id", "th", "psc", "spLa",
		},
		StripPrefixes: []string{"utm_"},
		VariantKeys: map[retailer.Retailer][]string{
			retailer.Amazon:  {"th", "psc"},
			retailer.Target:  {"preselect"},
			retailer.Walmart: {"color", "size"},
			retailer.BestBuy: {"skuId"},
			retailer.Wayfair: {},
		},
	}
}

// Normalizer is immutable after New and safe for concurrent use.
type Normalizer struct {
	retailers retailer.Table
	strip     map[string]struct{}
	prefixes  []string
	variants  map[retailer.Retailer][]string
}

func New(t Tables) *Normalizer {
	n := &Normalizer{
		retailers: t.Retailers.Clone(),
		strip:     make(map[string]struct{}, len(t.StripParams)+1),
		variants:  make(map[retailer.Retailer][]string, len(t.VariantKeys)),
	}
	for _, p := range t.StripParams {
		n.strip[strings.ToLower(p)] = struct{}{}
	}
	// Amazon's own affiliate param is never carried into a canonical URL.
	n.strip["tag"] = struct{}{}
	for _, p := range t.StripPrefixes {
		n.prefixes = append(n.prefixes, strings.ToLower(p))
	}
	for r, keys := range t.VariantKeys {
		n.variants[r] = append([]string(nil), keys...)
	}
	return n
}

func (n *Normalizer) Normalize(raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	return n.NormalizeResolved(raw, raw)
}

// NormalizeResolved canonicalizes resolved, the final URL after redirects,
// while recording original as the URL the user submitted.
func (n *Normalizer) NormalizeResolved(original, resolved string) (NormalizedURL, error) {
	original = strings.TrimSpace(original)
	resolved = strings.TrimSpace(resolved)
	if resolved == "" {
		resolved = original
	}

	u, err := parseAbsolute(resolved)
	if err != nil {
		return NormalizedURL{}, err
	}

	var stripped []string
	var kept queryparams.List
	for _, p := range queryparams.Parse(u.RawQuery) {
		if n.isTracking(p.Key) {
			stripped = append(stripped, p.Key)
			continue
		}
		kept = append(kept, p)
	}

	r := n.retailers.Lookup(u.Hostname())

	variants := VariantParams{}
	if r != retailer.None {
		for _, key := range n.variants[r] {
			val, ok := kept.Get(key)
			if !ok {
				continue
			}
			variants = append(variants, queryparams.Param{Key: key, Value: val})
			kept = kept.Without(key)
		}
	}
	if stripped == nil {
		stripped = []string{}
	}

	return NormalizedURL{
		Original:       original,
		Resolved:       resolved,
		Canonical:      canonical(u, kept),
		Retailer:       r,
		IsSupported:    r != retailer.None,
		VariantParams:  variants,
		StrippedParams: stripped,
	}, nil
}

// DetectRetailer looks up the retailer for raw without building a full
// NormalizedURL. Unparseable input yields retailer.None.
func (n *Normalizer) DetectRetailer(raw string) retailer.Retailer {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return retailer.None
	}
	return n.retailers.Lookup(u.Hostname())
}

func (n *Normalizer) isTracking(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := n.strip[lower]; ok {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w (missing scheme/host): %q", ErrInvalidURL, raw)
	}
	return u, nil
}

func canonical(u *url.URL, kept queryparams.List) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	out := scheme + "://" + host + u.EscapedPath()
	if q := kept.Encode(); q != "" {
		out += "?" + q
	}
	return out
}
