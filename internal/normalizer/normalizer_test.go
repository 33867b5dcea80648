package normalizer

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"joinpounce/internal/retailer"
)

func newDefault() *Normalizer { return New(DefaultTables()) }

func TestNormalize_AmazonStripsTrackingAndTag(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("  https://www.amazon.com/dp/B0TEST?utm_source=ig&tag=someone-20&keywords=pan&th=1&psc=1#reviews ")
	require.NoError(t, err)

	require.Equal(t, "https://www.amazon.com/dp/B0TEST?utm_source=ig&tag=someone-20&keywords=pan&th=1&psc=1#reviews", got.Original)
	require.Equal(t, got.Original, got.Resolved)
	require.Equal(t, "https://www.amazon.com/dp/B0TEST?keywords=pan", got.Canonical)
	require.Equal(t, retailer.Amazon, got.Retailer)
	require.True(t, got.IsSupported)
	require.Equal(t, []string{"utm_source", "tag", "th", "psc"}, got.StrippedParams)
	require.Empty(t, got.VariantParams)
}

func TestNormalize_WalmartExtractsVariantsInTableOrder(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("https://www.walmart.com/ip/123?size=L&from=search&color=Navy&fbclid=abc")
	require.NoError(t, err)

	require.Equal(t, "https://www.walmart.com/ip/123?from=search", got.Canonical)
	require.Equal(t, retailer.Walmart, got.Retailer)
	require.Equal(t, []string{"fbclid"}, got.StrippedParams)

	color, ok := got.VariantParams.Get("color")
	require.True(t, ok)
	require.Equal(t, "Navy", color)

	b, err := json.Marshal(got.VariantParams)
	require.NoError(t, err)
	require.Equal(t, `{"color":"Navy","size":"L"}`, string(b))
}

func TestNormalize_VariantKeysAreCaseSensitive(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("https://www.bestbuy.com/site/tv/6501.p?skuId=6501&SKUID=7")
	require.NoError(t, err)

	require.Equal(t, "https://www.bestbuy.com/site/tv/6501.p?SKUID=7", got.Canonical)
	v, ok := got.VariantParams.Get("skuId")
	require.True(t, ok)
	require.Equal(t, "6501", v)
}

func TestNormalize_TargetPreselect(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("https://www.target.com/p/lamp/-/A-1?preselect=999&afid=x")
	require.NoError(t, err)

	require.Equal(t, "https://www.target.com/p/lamp/-/A-1?afid=x", got.Canonical)
	v, _ := got.VariantParams.Get("preselect")
	require.Equal(t, "999", v)
}

func TestNormalize_UnknownRetailerKeepsVariantLikeParams(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("https://shop.example.com/p/1?color=red&UTM_Campaign=x&Ref=y")
	require.NoError(t, err)

	require.Equal(t, retailer.None, got.Retailer)
	require.False(t, got.IsSupported)
	require.Equal(t, "https://shop.example.com/p/1?color=red", got.Canonical)
	require.Equal(t, []string{"UTM_Campaign", "Ref"}, got.StrippedParams)
}

func TestNormalize_StripListIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("https://www.wayfair.com/a?spla=1&SPLA=2&GCLID=3&utm_whatever=4&keep=5")
	require.NoError(t, err)

	require.Equal(t, "https://www.wayfair.com/a?keep=5", got.Canonical)
	require.Equal(t, []string{"spla", "SPLA", "GCLID", "utm_whatever"}, got.StrippedParams)
}

func TestNormalize_EmptyQueryAndPath(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("HTTPS://WWW.Amazon.com")
	require.NoError(t, err)

	require.Equal(t, "https://www.amazon.com", got.Canonical)
	require.Equal(t, retailer.Amazon, got.Retailer)
	require.NotNil(t, got.StrippedParams)
	require.Empty(t, got.StrippedParams)
	require.Empty(t, got.VariantParams)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	require.Contains(t, string(b), `"variant_params":{}`)
	require.Contains(t, string(b), `"tracking_params_stripped":[]`)
}

func TestNormalize_DropsDefaultPortAndUserinfo(t *testing.T) {
	t.Parallel()

	got, err := newDefault().Normalize("https://user:pw@www.target.com:443/p/x?b=1")
	require.NoError(t, err)
	require.Equal(t, "https://www.target.com/p/x?b=1", got.Canonical)
	require.Equal(t, retailer.Target, got.Retailer)

	got, err = newDefault().Normalize("http://www.target.com:8080/p/x")
	require.NoError(t, err)
	require.Equal(t, "http://www.target.com:8080/p/x", got.Canonical)
}

func TestNormalize_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a url", "www.amazon.com/dp/X", "https://", "://x", "/relative/path"} {
		_, err := newDefault().Normalize(raw)
		require.ErrorIs(t, err, ErrInvalidURL, "input %q", raw)
	}
}

func TestNormalizeResolved_UsesResolvedForIdentity(t *testing.T) {
	t.Parallel()

	got, err := newDefault().NormalizeResolved("https://amzn.to/3abc", "https://www.amazon.com/dp/B01?ref_=x&utm_medium=y")
	require.NoError(t, err)

	require.Equal(t, "https://amzn.to/3abc", got.Original)
	require.Equal(t, "https://www.amazon.com/dp/B01?ref_=x&utm_medium=y", got.Resolved)
	require.Equal(t, "https://www.amazon.com/dp/B01?ref_=x", got.Canonical)
}

func TestNormalize_StrippedKeysNeverInCanonical(t *testing.T) {
	t.Parallel()

	n := newDefault()
	tables := DefaultTables()
	keys := append([]string{"utm_X", "Utm_id", "UTM_"}, tables.StripParams...)

	for _, key := range keys {
		for _, host := range []string{"www.amazon.com", "example.org"} {
			raw := "https://" + host + "/p?a=1&" + url.QueryEscape(key) + "=v&z=2"
			got, err := n.Normalize(raw)
			require.NoError(t, err)

			cu, err := url.Parse(got.Canonical)
			require.NoError(t, err)
			for k := range cu.Query() {
				require.NotEqual(t, strings.ToLower(key), strings.ToLower(k), "canonical %q", got.Canonical)
			}
			require.Contains(t, got.StrippedParams, key)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	n := newDefault()
	inputs := []string{
		"https://www.amazon.com/dp/B0X?utm_source=a&keywords=cast+iron%20pan&th=1",
		"https://www.walmart.com/ip/9?color=Red&size=M&q=a%2Fb",
		"https://WWW.BESTBUY.COM:443/site/x.p?skuId=1&cmp=RMX",
		"https://www.wayfair.com/furniture/pdp/x.html?piid=12&utm_term=z",
		"https://amzn.to",
	}
	for _, raw := range inputs {
		first, err := n.Normalize(raw)
		require.NoError(t, err)
		second, err := n.Normalize(first.Canonical)
		require.NoError(t, err)
		require.Equal(t, first.Canonical, second.Canonical, "input %q", raw)
		require.Empty(t, second.StrippedParams)
		require.Empty(t, second.VariantParams)
	}
}

func TestDetectRetailer(t *testing.T) {
	t.Parallel()

	n := newDefault()
	require.Equal(t, retailer.Amazon, n.DetectRetailer("https://www.amazon.com/dp/X"))
	require.Equal(t, retailer.None, n.DetectRetailer("https://example.com/x"))
	require.Equal(t, retailer.Wayfair, n.DetectRetailer("https://WAYFAIR.com:443/x"))
	require.Equal(t, retailer.None, n.DetectRetailer("http://[::1"))
	require.Equal(t, retailer.None, n.DetectRetailer(""))
}

func TestNew_SubstitutedTables(t *testing.T) {
	t.Parallel()

	tables := DefaultTables()
	costco := retailer.Retailer("costco")
	tables.Retailers = tables.Retailers.Clone()
	tables.Retailers["www.costco.com"] = costco
	tables.VariantKeys[costco] = []string{"option"}
	tables.StripParams = append(tables.StripParams, "cm_mmc")

	got, err := New(tables).Normalize("https://www.costco.com/p.html?option=2&cm_mmc=x&lang=en")
	require.NoError(t, err)
	require.Equal(t, costco, got.Retailer)
	require.Equal(t, "https://www.costco.com/p.html?lang=en", got.Canonical)
	require.Equal(t, []string{"cm_mmc"}, got.StrippedParams)

	require.Equal(t, retailer.None, newDefault().DetectRetailer("https://www.costco.com/p.html"))
}

func TestVariantParams_JSONRoundTripKeepsOrder(t *testing.T) {
	t.Parallel()

	var v VariantParams
	require.NoError(t, json.Unmarshal([]byte(`{"size":"M","color":"Red"}`), &v))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `{"size":"M","color":"Red"}`, string(b))

	require.Error(t, json.Unmarshal([]byte(`["x"]`), &v))
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}
