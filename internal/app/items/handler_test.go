package items

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inngest/inngestgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"joinpounce/db"
	"joinpounce/db/dbtest"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/app/inngest/deadlink"
	"joinpounce/internal/normalizer"
	pkginngest "joinpounce/internal/pkg/inngest"
	"joinpounce/internal/pkg/webpage"
	"joinpounce/internal/pricing"
	"joinpounce/internal/retailer"
)

type fakeFetcher struct {
	resolved map[string]string
	meta     webpage.Meta
	metaErr  error
}

func (f *fakeFetcher) Resolve(_ context.Context, raw string) (string, error) {
	if to, ok := f.resolved[raw]; ok {
		return to, nil
	}
	return raw, nil
}

func (f *fakeFetcher) FetchMeta(_ context.Context, raw string) (webpage.Meta, error) {
	if f.metaErr != nil {
		return webpage.Meta{}, f.metaErr
	}
	m := f.meta
	m.URL = raw
	return m, nil
}

type fakeSender struct {
	events []inngestgo.Event
	err    error
}

func (s *fakeSender) Send(_ context.Context, evt any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.events = append(s.events, evt.(inngestgo.Event))
	return "evt-1", nil
}

type ItemsSuite struct {
	suite.Suite

	store  *dao.Store
	sender *fakeSender
	deps   deps
	mux    *chi.Mux
}

func TestItemsSuite(t *testing.T) {
	suite.Run(t, new(ItemsSuite))
}

func (s *ItemsSuite) SetupTest() {
	s.store = dao.NewStore(dao.NewStoreParams{DB: dbtest.NewSQLite(s.T()), Backend: db.BackendSQLite, Logger: zap.NewNop().Sugar()})
	s.sender = &fakeSender{}
	s.deps = deps{
		normalizer: normalizer.New(normalizer.DefaultTables()),
		store:      s.store,
		events:     s.sender,
		logger:     zap.NewNop().Sugar(),
		now:        func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
	}
	s.mount()
}

func (s *ItemsSuite) mount() {
	s.mux = chi.NewRouter()
	(&PreviewHandler{deps: s.deps}).RegisterRoute(s.mux)
	(&CreateHandler{deps: s.deps}).RegisterRoute(s.mux)
	(&GetHandler{deps: s.deps}).RegisterRoute(s.mux)
	(&DeadHandler{deps: s.deps}).RegisterRoute(s.mux)
}

func (s *ItemsSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func (s *ItemsSuite) createItem() dao.Item {
	w := s.do(http.MethodPost, "/api/items", `{"list_id":"l1","user_id":"u1","url":"https://www.walmart.com/ip/123?utm_source=x","current_price":"49.99"}`)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var it dao.Item
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &it))
	return it
}

func (s *ItemsSuite) TestPreview_Normalizes() {
	w := s.do(http.MethodPost, "/api/items/preview", `{"url":"https://www.amazon.com/dp/B0TEST?tag=other-20&utm_source=mail&th=1"}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var got previewResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal(retailer.Amazon, got.Retailer)
	s.True(got.IsSupported)
	s.Equal("https://www.amazon.com/dp/B0TEST", got.Canonical)
	s.Nil(got.Product)
}

func (s *ItemsSuite) TestPreview_InvalidURL() {
	w := s.do(http.MethodPost, "/api/items/preview", `{"url":"not a url"}`)
	s.Equal(http.StatusBadRequest, w.Code, w.Body.String())
}

func (s *ItemsSuite) TestPreview_ResolvesAndFetchesWhenEnabled() {
	price := decimal.RequireFromString("19.99")
	s.deps.fetcher = &fakeFetcher{
		resolved: map[string]string{"https://a.co/d/xyz": "https://www.amazon.com/dp/B0SHORT?ref_=share"},
		meta:     webpage.Meta{Title: "Short Link Pan", Price: &price},
	}
	s.mount()

	w := s.do(http.MethodPost, "/api/items/preview", `{"url":"https://a.co/d/xyz"}`)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var got previewResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal("https://a.co/d/xyz", got.Original)
	s.Equal(retailer.Amazon, got.Retailer)
	s.Require().NotNil(got.Product)
	s.Equal("Short Link Pan", got.Product.Title)
}

func (s *ItemsSuite) TestCreate_PersistsCanonical() {
	it := s.createItem()
	s.Equal("https://www.walmart.com/ip/123", it.CanonicalURL)
	s.Equal(retailer.Walmart, it.Retailer)
	s.Equal("49.99", it.CurrentPrice.Decimal.String())
	s.True(it.IsActive)
	s.Equal(pricing.DefaultThresholds().Percent.String(), it.Thresholds.Percent.String())
}

func (s *ItemsSuite) TestCreate_FillsFromMeta() {
	price := decimal.RequireFromString("75")
	s.deps.fetcher = &fakeFetcher{meta: webpage.Meta{Title: "Acme Kettle", Image: "https://img.test/k.jpg", Price: &price}}
	s.mount()

	w := s.do(http.MethodPost, "/api/items", `{"list_id":"l1","user_id":"u1","url":"https://www.target.com/p/kettle/-/A-9"}`)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var it dao.Item
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &it))
	s.Equal("Acme Kettle", it.ProductName)
	s.Equal("https://img.test/k.jpg", it.ProductImage)
	s.Equal("75", it.CurrentPrice.Decimal.String())
}

func (s *ItemsSuite) TestCreate_KeepsZeroThreshold() {
	w := s.do(http.MethodPost, "/api/items", `{"list_id":"l1","user_id":"u1","url":"https://www.walmart.com/ip/7","alert_threshold_percent":"0","alert_threshold_amount":"5"}`)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var it dao.Item
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &it))
	s.True(it.Thresholds.Percent.IsZero(), it.Thresholds.Percent.String())
	s.Equal("5", it.Thresholds.Amount.String())
}

func (s *ItemsSuite) TestCreate_Rejections() {
	cases := []struct {
		body string
		code int
	}{
		{`{"user_id":"u1","url":"https://www.walmart.com/ip/1"}`, http.StatusBadRequest},
		{`{"list_id":"l1","user_id":"u1","url":"nope"}`, http.StatusBadRequest},
		{`{"list_id":"l1","user_id":"u1","url":"https://www.walmart.com/ip/1","target_price":"-1"}`, http.StatusBadRequest},
		{`{"list_id":"l1","user_id":"u1","url":"https://www.walmart.com/ip/1","alert_threshold_percent":"-5"}`, http.StatusBadRequest},
		{`{"list_id":"l1","user_id":"u1","url":"https://shop.example.com/p/1"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		w := s.do(http.MethodPost, "/api/items", tc.body)
		s.Equal(tc.code, w.Code, "%s: %s", tc.body, w.Body.String())
	}
}

func (s *ItemsSuite) TestGet_ReturnsHistory() {
	it := s.createItem()
	_, err := s.store.AppendObservation(context.Background(), pricing.Observation{
		ItemID:    it.ID,
		Price:     decimal.RequireFromString("45"),
		InStock:   true,
		CheckedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/api/items/"+it.ID, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var got getResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal(it.ID, got.Item.ID)
	s.Equal("45", got.Item.CurrentPrice.Decimal.String())
	s.Require().Len(got.History, 1)
	s.Equal("45", got.History[0].Price.String())
}

func (s *ItemsSuite) TestGet_NotFound() {
	w := s.do(http.MethodGet, "/api/items/missing", "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *ItemsSuite) TestDead_SendsEvent() {
	it := s.createItem()

	w := s.do(http.MethodPost, "/api/items/"+it.ID+"/dead", "")
	s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())

	s.Require().Len(s.sender.events, 1)
	evt := s.sender.events[0]
	s.Equal(deadlink.DeadDetectedEventName, evt.Name)
	s.Equal(deadlink.EventID(it.ID), *evt.ID)
	s.Equal(deadlink.SourceManual, evt.Data["source"])
}

func (s *ItemsSuite) TestDead_InngestDisabled() {
	it := s.createItem()
	s.sender.err = pkginngest.ErrDisabled

	w := s.do(http.MethodPost, "/api/items/"+it.ID+"/dead", "")
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *ItemsSuite) TestDead_SendFailure() {
	it := s.createItem()
	s.sender.err = errors.New("boom")

	w := s.do(http.MethodPost, "/api/items/"+it.ID+"/dead", "")
	s.Equal(http.StatusBadGateway, w.Code)
}

func (s *ItemsSuite) TestDead_AlreadyArchived() {
	it := s.createItem()
	_, err := s.store.MarkDead(context.Background(), it.ID)
	s.Require().NoError(err)

	w := s.do(http.MethodPost, "/api/items/"+it.ID+"/dead", "")
	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.sender.events)
}
