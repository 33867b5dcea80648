package retailer

import (
	"fmt"
	"strings"
)

type Retailer string

const (
	None    Retailer = ""
	Amazon  Retailer = "amazon"
	Target  Retailer = "target"
	Walmart Retailer = "walmart"
	BestBuy Retailer = "bestbuy"
	Wayfair Retailer = "wayfair"
)

func All() []Retailer {
	return []Retailer{Amazon, Target, Walmart, BestBuy, Wayfair}
}

func (r Retailer) Valid() bool {
	switch r {
	case Amazon, Target, Walmart, BestBuy, Wayfair:
		return true
	default:
		return false
	}
}

func Parse(s string) (Retailer, error) {
	r := Retailer(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return None, fmt.Errorf("unsupported retailer %q", s)
	}
	return r, nil
}

// Table maps lowercase hostnames to retailers. Lookups are exact: a host that
// is not listed (including subdomains of listed hosts) has no retailer.
type Table map[string]Retailer

func DefaultTable() Table {
	return Table{
		"amazon.com":      Amazon,
		"www.amazon.com":  Amazon,
		"amzn.to":         Amazon,
		"target.com":      Target,
		"www.target.com":  Target,
		"walmart.com":     Walmart,
		"www.walmart.com": Walmart,
		"bestbuy.com":     BestBuy,
		"www.bestbuy.com": BestBuy,
		"wayfair.com":     Wayfair,
		"www.wayfair.com": Wayfair,
	}
}

func (t Table) Lookup(host string) Retailer {
	return t[strings.ToLower(strings.TrimSpace(host))]
}

// Clone returns a copy that can be extended without touching t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[strings.ToLower(k)] = v
	}
	return out
}
