package webpage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const productPage = `<!doctype html>
<html><head>
<title>
  Fallback   Title
</title>
<meta property="og:title" content="Acme 5-Piece Cookware Set">
<meta property="og:image" content="https://img.example.com/p.jpg">
<meta property="product:price:amount" content="1,299.99">
<meta property="product:price:currency" content="usd">
</head><body></body></html>`

func newTestClient(retries int) *Client {
	return New(Options{Timeout: 2 * time.Second, RetryMax: retries}, zap.NewNop().Sugar())
}

func TestResolve_FollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dp/B0TEST", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/dp/B0TEST", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != userAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got, err := newTestClient(0).Resolve(context.Background(), srv.URL+"/short")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/dp/B0TEST", got)
}

func TestFetchMeta(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	}))
	t.Cleanup(srv.Close)

	m, err := newTestClient(0).FetchMeta(context.Background(), srv.URL+"/p/1")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/p/1", m.URL)
	require.Equal(t, "Acme 5-Piece Cookware Set", m.Title)
	require.Equal(t, "https://img.example.com/p.jpg", m.Image)
	require.Equal(t, "USD", m.Currency)
	require.NotNil(t, m.Price)
	require.Equal(t, "1299.99", m.Price.String())
}

func TestFetchMeta_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(0).FetchMeta(context.Background(), srv.URL)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusForbidden, se.Code)
}

func TestParseMeta_FallbacksAndBadPrice(t *testing.T) {
	t.Parallel()

	m, err := ParseMeta(strings.NewReader(`<html><head><title> Plain  Page </title>
<meta itemprop="price" content="call for price"></head></html>`))
	require.NoError(t, err)
	require.Equal(t, "Plain Page", m.Title)
	require.Empty(t, m.Image)
	require.Nil(t, m.Price)
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"24.50", "24.5", true},
		{"$1,099.00", "1099", true},
		{"", "", false},
		{"free", "", false},
		{"1.2.3", "", false},
	}
	for _, tc := range cases {
		got, ok := parsePrice(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if ok {
			require.Equal(t, tc.want, got.String(), tc.in)
		}
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusGone) })
	mux.HandleFunc("/discontinued", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/?ref=discontinued", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestClient(0)
	cases := []struct {
		path   string
		dead   bool
		reason Reason
	}{
		{"/live", false, ReasonOK},
		{"/missing", true, ReasonNotFound},
		{"/gone", true, ReasonGone},
		{"/discontinued", true, ReasonRedirectedHome},
	}
	for _, tc := range cases {
		l, err := c.Probe(context.Background(), srv.URL+tc.path)
		require.NoError(t, err, tc.path)
		require.Equal(t, tc.dead, l.Dead, tc.path)
		require.Equal(t, tc.reason, l.Reason, tc.path)
	}
}

func TestProbe_ServerErrorIsNotDead(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	l, err := newTestClient(1).Probe(context.Background(), srv.URL+"/p/1")
	require.NoError(t, err)
	require.False(t, l.Dead)
	require.Equal(t, ReasonUnknown, l.Reason)
	require.Equal(t, http.StatusServiceUnavailable, l.Status)
	require.Equal(t, int32(2), calls.Load())
}

func TestClassify_RootLinkIsNotRedirectedHome(t *testing.T) {
	t.Parallel()

	l := Classify("https://www.target.com/", "https://www.target.com/", http.StatusOK)
	require.False(t, l.Dead)
	require.Equal(t, ReasonOK, l.Reason)
}
