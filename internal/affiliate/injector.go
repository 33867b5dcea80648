package affiliate

import (
	"fmt"
	"net/url"

	"joinpounce/internal/pkg/queryparams"
	"joinpounce/internal/retailer"
)

// Tag is one retailer's affiliate parameter. An empty Value means the
// program has not been approved yet.
type Tag struct {
	Retailer  retailer.Retailer `json:"retailer"`
	ParamName string            `json:"param_name"`
	Value     string            `json:"tag_value"`
}

type Tags map[retailer.Retailer]Tag

// ParamNames are the query parameters each retailer reads its affiliate id from.
var ParamNames = map[retailer.Retailer]string{
	retailer.Amazon:  "tag",
	retailer.Target:  "afid",
	retailer.Walmart: "affiliateId",
	retailer.BestBuy: "ref",
	retailer.Wayfair: "refid",
}

// DefaultTags builds the tag table from per-retailer values. Retailers
// missing from values get an empty tag.
func DefaultTags(values map[retailer.Retailer]string) Tags {
	out := make(Tags, len(ParamNames))
	for r, param := range ParamNames {
		out[r] = Tag{Retailer: r, ParamName: param, Value: values[r]}
	}
	return out
}

type Status string

const (
	StatusTagged          Status = "tagged"
	StatusNoTag           Status = "no_tag"
	StatusUnknownRetailer Status = "unknown_retailer"
	StatusMalformedURL    Status = "malformed_url"
)

// Result carries the rewritten URL. For every status other than
// StatusTagged, URL is the input unchanged.
type Result struct {
	URL    string
	Status Status
	Err    error
}

type Injector struct {
	tags Tags
}

func NewInjector(tags Tags) *Injector {
	cp := make(Tags, len(tags))
	for r, t := range tags {
		cp[r] = t
	}
	return &Injector{tags: cp}
}

func (i *Injector) Tag(r retailer.Retailer) (Tag, bool) {
	t, ok := i.tags[r]
	return t, ok
}

func (i *Injector) Inject(canonicalURL string, r retailer.Retailer) Result {
	tag, ok := i.tags[r]
	if !ok || tag.ParamName == "" {
		return Result{URL: canonicalURL, Status: StatusUnknownRetailer}
	}
	if tag.Value == "" {
		return Result{URL: canonicalURL, Status: StatusNoTag}
	}

	u, err := url.Parse(canonicalURL)
	if err != nil {
		return Result{URL: canonicalURL, Status: StatusMalformedURL, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return Result{
			URL:    canonicalURL,
			Status: StatusMalformedURL,
			Err:    fmt.Errorf("not an absolute url: %q", canonicalURL),
		}
	}

	params := queryparams.Parse(u.RawQuery).Without(tag.ParamName)
	params = append(params, queryparams.Param{Key: tag.ParamName, Value: tag.Value})
	u.RawQuery = params.Encode()
	u.ForceQuery = false

	return Result{URL: u.String(), Status: StatusTagged}
}

// InjectURL is Inject without the status.
func (i *Injector) InjectURL(canonicalURL string, r retailer.Retailer) string {
	return i.Inject(canonicalURL, r).URL
}
