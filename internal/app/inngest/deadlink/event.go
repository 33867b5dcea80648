package deadlink

import (
	"strings"
	"time"

	"github.com/inngest/inngestgo"

	"joinpounce/internal/pkg/webpage"
)

const DeadDetectedEventName = "items/dead.detected"

const (
	SourceScanner = "scanner"
	SourceManual  = "manual"
)

// ReasonReported marks a link a user reported dead by hand.
const ReasonReported webpage.Reason = "reported"

type DeadDetectedEventData struct {
	ItemID   string         `json:"item_id"`
	Reason   webpage.Reason `json:"reason"`
	FinalURL string         `json:"final_url,omitempty"`
	Source   string         `json:"source"`
}

// EventID dedupes repeat reports for one item; an archived item is never
// probed again, so the id needs no time component.
func EventID(itemID string) string {
	return "deadlink:" + strings.TrimSpace(itemID)
}

func NewDeadDetectedEvent(data DeadDetectedEventData, now time.Time) inngestgo.Event {
	return inngestgo.Event{
		ID:   inngestgo.StrPtr(EventID(data.ItemID)),
		Name: DeadDetectedEventName,
		Data: map[string]any{
			"item_id":   data.ItemID,
			"reason":    string(data.Reason),
			"final_url": data.FinalURL,
			"source":    data.Source,
		},
		Timestamp: inngestgo.Timestamp(now),
	}
}
