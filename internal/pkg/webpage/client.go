// Package webpage talks to retailer product pages: it resolves redirects,
// reads page metadata and probes whether a product link still works.
package webpage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"joinpounce/config"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; JoinPounceBot/1.0; +https://joinpounce.com/bot)"
	maxBodyBytes = 2 << 20
)

// StatusError is returned when a page answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

type Options struct {
	Timeout  time.Duration
	RetryMax int
}

type Client struct {
	http   *retryablehttp.Client
	logger *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return New(Options{Timeout: cfg.Fetch.Timeout, RetryMax: cfg.Fetch.RetryMax}, log)
}

func New(opts Options, log *zap.SugaredLogger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveledLogger{log: log}
	// Hand back the last response instead of a "giving up" error so callers
	// can classify the status.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{http: rc, logger: log}
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// finalURL is the URL of the last request in the redirect chain.
func finalURL(resp *http.Response, fallback string) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}

// Resolve follows redirects and returns where the link ends up. Short links
// and retailer redirectors resolve to the product page.
func (c *Client) Resolve(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rawURL, err)
	}
	defer drain(resp)

	final := finalURL(resp, rawURL)
	if final != rawURL {
		c.logger.Debugw("url_resolved", "from", rawURL, "to", final, "status", resp.StatusCode)
	}
	return final, nil
}

type leveledLogger struct {
	log *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }
