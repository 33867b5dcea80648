package webpage

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonNotFound       Reason = "not_found"
	ReasonGone           Reason = "gone"
	ReasonRedirectedHome Reason = "redirected_home"
	// ReasonUnknown covers 5xx, blocks and rate limits. The link is not
	// treated as dead.
	ReasonUnknown Reason = "unknown"
)

type Liveness struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Status   int    `json:"status"`
	Dead     bool   `json:"dead"`
	Reason   Reason `json:"reason"`
}

// Probe fetches the link and classifies it. Transport errors are returned as
// errors, not as dead links.
func (c *Client) Probe(ctx context.Context, rawURL string) (Liveness, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return Liveness{}, err
	}
	defer drain(resp)

	return Classify(rawURL, finalURL(resp, rawURL), resp.StatusCode), nil
}

// Classify decides liveness from the status and where the redirects ended:
// 404 and 410 are dead, and so is a product link that lands on the site root.
func Classify(original, final string, status int) Liveness {
	l := Liveness{URL: original, FinalURL: final, Status: status}
	switch {
	case status == http.StatusNotFound:
		l.Dead, l.Reason = true, ReasonNotFound
	case status == http.StatusGone:
		l.Dead, l.Reason = true, ReasonGone
	case redirectedHome(original, final):
		l.Dead, l.Reason = true, ReasonRedirectedHome
	case status >= 200 && status < 400:
		l.Reason = ReasonOK
	default:
		l.Reason = ReasonUnknown
	}
	return l
}

func redirectedHome(original, final string) bool {
	if original == final {
		return false
	}
	o, err := url.Parse(original)
	if err != nil {
		return false
	}
	f, err := url.Parse(final)
	if err != nil {
		return false
	}
	return !isRoot(o) && isRoot(f)
}

func isRoot(u *url.URL) bool {
	p := strings.TrimSpace(u.Path)
	return p == "" || p == "/"
}
