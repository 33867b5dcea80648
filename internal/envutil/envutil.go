// Package envutil reads the handful of settings the pounce CLI shares with
// the services, without pulling in the full viper config.
package envutil

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"joinpounce/internal/retailer"
)

// String returns the trimmed value of key, or def if it is unset or blank.
func String(getenv func(string) string, key string, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

// Decimal parses key as a decimal. Unset returns def; a malformed value is an
// error naming the variable.
func Decimal(getenv func(string) string, key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

// AffiliateKeys maps each retailer to the env var holding our id there.
var AffiliateKeys = map[retailer.Retailer]string{
	retailer.Amazon:  "AMAZON_AFFILIATE_TAG",
	retailer.Target:  "TARGET_AFFILIATE_ID",
	retailer.Walmart: "WALMART_AFFILIATE_ID",
	retailer.BestBuy: "BESTBUY_AFFILIATE_ID",
	retailer.Wayfair: "WAYFAIR_AFFILIATE_ID",
}

const DefaultAmazonTag = "joinpounce-20"

// AffiliateIDs collects the configured affiliate ids. Amazon falls back to
// DefaultAmazonTag; other retailers stay blank when unset.
func AffiliateIDs(getenv func(string) string) map[retailer.Retailer]string {
	out := make(map[retailer.Retailer]string, len(AffiliateKeys))
	for r, key := range AffiliateKeys {
		def := ""
		if r == retailer.Amazon {
			def = DefaultAmazonTag
		}
		out[r] = String(getenv, key, def)
	}
	return out
}
