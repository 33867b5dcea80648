package affiliate

import (
	"net/url"
	"strings"
)

const DefaultTrackingBase = "https://joinpounce.com"

// Tracker builds first-party click-tracking links that the /r endpoint
// resolves back to the affiliate URL.
type Tracker struct {
	base string
}

func NewTracker(baseURL string) *Tracker {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultTrackingBase
	}
	return &Tracker{base: base}
}

func (t *Tracker) BuildTrackingURL(notificationID, affiliateURL string) string {
	return t.base + "/r?n=" + url.QueryEscape(notificationID) + "&u=" + url.QueryEscape(affiliateURL)
}
