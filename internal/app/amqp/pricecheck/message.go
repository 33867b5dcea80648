package pricecheck

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"

	"joinpounce/internal/pricing"
)

const EventPricesObserved = "prices/observed"

type PriceObservedData struct {
	ItemID    string          `json:"item_id"`
	Price     decimal.Decimal `json:"price"`
	InStock   bool            `json:"in_stock"`
	CheckedAt time.Time       `json:"checked_at"`
}

func (d PriceObservedData) Observation() pricing.Observation {
	return pricing.Observation{ItemID: d.ItemID, Price: d.Price, InStock: d.InStock, CheckedAt: d.CheckedAt.UTC()}
}

type PriceObservedEnvelope struct {
	EventName string            `json:"event_name"`
	EventID   string            `json:"event_id"`
	TS        time.Time         `json:"ts"`
	Data      PriceObservedData `json:"data"`
}

// EventID is stable for one item at one check time, so a re-sent
// observation carries the same id.
func EventID(itemID string, checkedAt time.Time) string {
	sum := sha256.Sum256([]byte(itemID + "|" + checkedAt.UTC().Format(time.RFC3339Nano)))
	return "obssha256:" + hex.EncodeToString(sum[:])
}
