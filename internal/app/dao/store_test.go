package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/db"
	"joinpounce/db/dbtest"
	"joinpounce/internal/normalizer"
	"joinpounce/internal/pkg/queryparams"
	"joinpounce/internal/pricing"
	"joinpounce/internal/retailer"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

type StoreSuite struct {
	suite.Suite

	ctx   context.Context
	store *Store
	clock time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewStore(NewStoreParams{
		DB:      dbtest.NewSQLite(s.T()),
		Backend: db.BackendSQLite,
		Logger:  zap.NewNop().Sugar(),
	})
	s.store.now = func() time.Time { return s.clock }
}

func (s *StoreSuite) createItem(name, price string) Item {
	it, err := s.store.CreateItem(s.ctx, CreateItemInput{
		ListID:        "list_1",
		UserID:        "user_1",
		URL:           "https://www.walmart.com/ip/123?color=Navy&utm_source=x",
		CanonicalURL:  "https://www.walmart.com/ip/123",
		Retailer:      retailer.Walmart,
		ProductName:   name,
		VariantParams: normalizer.VariantParams{queryparams.Param{Key: "color", Value: "Navy"}},
		CurrentPrice:  nullDec(price),
	})
	s.Require().NoError(err)
	return it
}

func (s *StoreSuite) TestCreateAndGetItem() {
	created := s.createItem("Acme Dutch Oven", "89.99")

	got, err := s.store.GetItem(s.ctx, created.ID)
	s.Require().NoError(err)

	s.Equal(created.ID, got.ID)
	s.Equal(retailer.Walmart, got.Retailer)
	s.Equal("Acme Dutch Oven", got.ProductName)
	s.True(got.IsActive)
	s.False(got.IsDead)
	s.Nil(got.LastCheckedAt)
	s.True(got.CurrentPrice.Decimal.Equal(dec("89.99")))
	s.True(got.OriginalPrice.Decimal.Equal(dec("89.99")))
	s.False(got.TargetPrice.Valid)
	s.True(got.Thresholds.Percent.Equal(dec("10")))
	s.True(got.Thresholds.Amount.Equal(dec("10")))
	s.Equal(s.clock, got.CreatedAt)

	v, ok := got.VariantParams.Get("color")
	s.True(ok)
	s.Equal("Navy", v)
}

func (s *StoreSuite) TestCreateItem_Validation() {
	_, err := s.store.CreateItem(s.ctx, CreateItemInput{
		ListID:       "list_1",
		UserID:       "user_1",
		URL:          "https://example.com/p",
		CanonicalURL: "https://example.com/p",
		Retailer:     retailer.Retailer("example"),
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "unsupported retailer")

	_, err = s.store.CreateItem(s.ctx, CreateItemInput{
		ListID:           "list_1",
		UserID:           "user_1",
		URL:              "https://www.target.com/p/1",
		CanonicalURL:     "https://www.target.com/p/1",
		Retailer:         retailer.Target,
		ThresholdPercent: nullDec("-1"),
	})
	s.Require().Error(err)

	_, err = s.store.CreateItem(s.ctx, CreateItemInput{UserID: "user_1"})
	s.Require().Error(err)
}

func (s *StoreSuite) TestCreateItem_ExplicitZeroThreshold() {
	created, err := s.store.CreateItem(s.ctx, CreateItemInput{
		ListID:           "list_1",
		UserID:           "user_1",
		URL:              "https://www.target.com/p/2",
		CanonicalURL:     "https://www.target.com/p/2",
		Retailer:         retailer.Target,
		ThresholdPercent: nullDec("0"),
		ThresholdAmount:  nullDec("5"),
	})
	s.Require().NoError(err)

	got, err := s.store.GetItem(s.ctx, created.ID)
	s.Require().NoError(err)
	s.True(got.Thresholds.Percent.IsZero(), got.Thresholds.Percent.String())
	s.True(got.Thresholds.Amount.Equal(dec("5")), got.Thresholds.Amount.String())
}

func (s *StoreSuite) TestCreateItem_DefaultsFromConfig() {
	cfg := &config.Config{}
	cfg.Alerts.ThresholdPercent = dec("15")
	cfg.Alerts.ThresholdAmount = dec("0")
	store := NewStore(NewStoreParams{
		DB:      dbtest.NewSQLite(s.T()),
		Backend: db.BackendSQLite,
		Cfg:     cfg,
		Logger:  zap.NewNop().Sugar(),
	})

	created, err := store.CreateItem(s.ctx, CreateItemInput{
		ListID:          "list_1",
		UserID:          "user_1",
		URL:             "https://www.target.com/p/3",
		CanonicalURL:    "https://www.target.com/p/3",
		Retailer:        retailer.Target,
		ThresholdAmount: nullDec("7"),
	})
	s.Require().NoError(err)
	s.True(created.Thresholds.Percent.Equal(dec("15")))
	s.True(created.Thresholds.Amount.Equal(dec("7")))
}

func (s *StoreSuite) TestGetItem_NotFound() {
	_, err := s.store.GetItem(s.ctx, uuid.NewString())
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestAppendObservation_MovesPriceForward() {
	it := s.createItem("Acme Dutch Oven", "100")
	t1 := s.clock.Add(time.Hour)

	res, err := s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: it.ID, Price: dec("85.50"), InStock: true, CheckedAt: t1})
	s.Require().NoError(err)
	s.NotEmpty(res.ObservationID)
	s.True(res.Before.CurrentPrice.Decimal.Equal(dec("100")))

	got, err := s.store.GetItem(s.ctx, it.ID)
	s.Require().NoError(err)
	s.True(got.CurrentPrice.Decimal.Equal(dec("85.50")))
	s.True(got.OriginalPrice.Decimal.Equal(dec("100")))
	s.Require().NotNil(got.LastCheckedAt)
	s.Equal(t1, *got.LastCheckedAt)
}

func (s *StoreSuite) TestAppendObservation_OutOfStockKeepsPrice() {
	it := s.createItem("Acme Dutch Oven", "100")
	t1 := s.clock.Add(time.Hour)

	_, err := s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: it.ID, Price: dec("1"), InStock: false, CheckedAt: t1})
	s.Require().NoError(err)

	got, err := s.store.GetItem(s.ctx, it.ID)
	s.Require().NoError(err)
	s.True(got.CurrentPrice.Decimal.Equal(dec("100")))
	s.Require().NotNil(got.LastCheckedAt)
	s.Equal(t1, *got.LastCheckedAt)

	h, err := s.store.PriceHistory(s.ctx, it.ID, time.Time{})
	s.Require().NoError(err)
	s.Require().Len(h, 1)
	s.False(h[0].InStock)
}

func (s *StoreSuite) TestAppendObservation_RejectsStale() {
	it := s.createItem("Acme Dutch Oven", "100")
	t1 := s.clock.Add(2 * time.Hour)

	_, err := s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: it.ID, Price: dec("90"), InStock: true, CheckedAt: t1})
	s.Require().NoError(err)

	_, err = s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: it.ID, Price: dec("80"), InStock: true, CheckedAt: t1.Add(-time.Minute)})
	s.Require().ErrorIs(err, ErrStaleObservation)

	h, err := s.store.PriceHistory(s.ctx, it.ID, time.Time{})
	s.Require().NoError(err)
	s.Len(h, 1)
}

func (s *StoreSuite) TestAppendObservation_RedeliveryIsIdempotent() {
	it := s.createItem("Acme Dutch Oven", "100")
	obs := pricing.Observation{ItemID: it.ID, Price: dec("85.50"), InStock: true, CheckedAt: s.clock.Add(time.Hour)}

	_, err := s.store.AppendObservation(s.ctx, obs)
	s.Require().NoError(err)

	_, err = s.store.AppendObservation(s.ctx, obs)
	s.Require().ErrorIs(err, ErrDuplicateObservation)

	conflicting := obs
	conflicting.Price = dec("70")
	_, err = s.store.AppendObservation(s.ctx, conflicting)
	s.Require().ErrorIs(err, ErrStaleObservation)

	h, err := s.store.PriceHistory(s.ctx, it.ID, time.Time{})
	s.Require().NoError(err)
	s.Len(h, 1)

	got, err := s.store.GetItem(s.ctx, it.ID)
	s.Require().NoError(err)
	s.True(got.CurrentPrice.Decimal.Equal(dec("85.50")))
}

func (s *StoreSuite) TestAppendObservation_UnknownAndNegative() {
	_, err := s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: "missing", Price: dec("1"), InStock: true, CheckedAt: s.clock})
	s.Require().ErrorIs(err, ErrNotFound)

	it := s.createItem("Acme Dutch Oven", "100")
	_, err = s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: it.ID, Price: dec("-1"), InStock: true, CheckedAt: s.clock})
	s.Require().ErrorIs(err, pricing.ErrInvalidPrice)
}

func (s *StoreSuite) TestPriceHistory_OrderAndSince() {
	it := s.createItem("Acme Dutch Oven", "100")
	prices := []string{"99", "97", "95", "90"}
	for i, p := range prices {
		_, err := s.store.AppendObservation(s.ctx, pricing.Observation{
			ItemID:    it.ID,
			Price:     dec(p),
			InStock:   true,
			CheckedAt: s.clock.Add(time.Duration(i+1) * time.Hour),
		})
		s.Require().NoError(err)
	}

	all, err := s.store.PriceHistory(s.ctx, it.ID, time.Time{})
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, p := range prices {
		s.True(all[i].Price.Equal(dec(p)), "index %d", i)
	}

	recent, err := s.store.PriceHistory(s.ctx, it.ID, s.clock.Add(3*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.True(recent[0].Price.Equal(dec("95")))

	low, ok := all.LowestSince(s.clock)
	s.True(ok)
	s.True(low.Equal(dec("90")))
}

func (s *StoreSuite) TestMarkDead_IsIdempotentAndStopsAppends() {
	it := s.createItem("Acme Dutch Oven", "100")

	dead, err := s.store.MarkDead(s.ctx, it.ID)
	s.Require().NoError(err)
	s.False(dead.IsActive)
	s.True(dead.IsDead)

	again, err := s.store.MarkDead(s.ctx, it.ID)
	s.Require().NoError(err)
	s.True(again.IsDead)

	got, err := s.store.GetItem(s.ctx, it.ID)
	s.Require().NoError(err)
	s.False(got.IsActive)
	s.True(got.IsDead)

	_, err = s.store.AppendObservation(s.ctx, pricing.Observation{ItemID: it.ID, Price: dec("50"), InStock: true, CheckedAt: s.clock.Add(time.Hour)})
	s.Require().ErrorIs(err, ErrItemInactive)

	_, err = s.store.MarkDead(s.ctx, "missing")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreSuite) TestListActiveItems() {
	a := s.createItem("First", "10")
	s.clock = s.clock.Add(time.Second)
	b := s.createItem("Second", "20")
	s.clock = s.clock.Add(time.Second)
	c := s.createItem("Third", "30")

	_, err := s.store.MarkDead(s.ctx, b.ID)
	s.Require().NoError(err)

	items, err := s.store.ListActiveItems(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(a.ID, items[0].ID)
	s.Equal(c.ID, items[1].ID)

	page, err := s.store.ListActiveItems(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(c.ID, page[0].ID)
}

func (s *StoreSuite) TestSearchActiveByKeywords() {
	s.createItem("Lodge Cast Iron Skillet", "40")
	s.createItem("Garden Hose", "25")

	other, err := s.store.CreateItem(s.ctx, CreateItemInput{
		ListID:       "list_2",
		UserID:       "user_2",
		URL:          "https://www.target.com/p/skillet/-/A-1",
		CanonicalURL: "https://www.target.com/p/skillet/-/A-1",
		Retailer:     retailer.Target,
		ProductName:  "Cast Iron Skillet 12in",
		CurrentPrice: nullDec("38"),
	})
	s.Require().NoError(err)

	got, err := s.store.SearchActiveByKeywords(s.ctx, []string{"skillet", "iron"}, retailer.Walmart, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(other.ID, got[0].ID)

	got, err = s.store.SearchActiveByKeywords(s.ctx, []string{"SKILLET"}, retailer.Amazon, 10)
	s.Require().NoError(err)
	s.Len(got, 2)

	got, err = s.store.SearchActiveByKeywords(s.ctx, nil, retailer.Amazon, 10)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *StoreSuite) TestUpdateProductMeta() {
	it := s.createItem("", "10")

	s.Require().NoError(s.store.UpdateProductMeta(s.ctx, it.ID, "Acme Kettle", ""))
	got, err := s.store.GetItem(s.ctx, it.ID)
	s.Require().NoError(err)
	s.Equal("Acme Kettle", got.ProductName)
	s.Empty(got.ProductImage)

	s.Require().ErrorIs(s.store.UpdateProductMeta(s.ctx, "missing", "x", ""), ErrNotFound)
}

func (s *StoreSuite) TestNotificationLifecycle() {
	it := s.createItem("Acme Dutch Oven", "100")

	n, err := s.store.CreateNotification(s.ctx, CreateNotificationInput{
		UserID:       it.UserID,
		ItemID:       it.ID,
		Type:         NotificationPriceDrop,
		PriceBefore:  nullDec("100"),
		PriceAfter:   nullDec("85"),
		AffiliateURL: "https://www.walmart.com/ip/123?affiliateId=abc",
	})
	s.Require().NoError(err)
	s.Nil(n.SentAt)
	s.Nil(n.OpenedAt)

	sentAt := s.clock.Add(time.Minute)
	s.Require().NoError(s.store.MarkNotificationSent(s.ctx, n.ID, sentAt))

	first := s.clock.Add(time.Hour)
	opened, err := s.store.MarkNotificationOpened(s.ctx, n.ID, first)
	s.Require().NoError(err)
	s.True(opened)

	opened, err = s.store.MarkNotificationOpened(s.ctx, n.ID, first.Add(time.Hour))
	s.Require().NoError(err)
	s.False(opened)

	got, err := s.store.GetNotification(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.SentAt)
	s.Equal(sentAt, *got.SentAt)
	s.Require().NotNil(got.OpenedAt)
	s.Equal(first, *got.OpenedAt)
	s.True(got.PriceAfter.Decimal.Equal(dec("85")))

	convertedAt := first.Add(30 * time.Minute)
	s.Require().NoError(s.store.MarkNotificationConverted(s.ctx, n.ID, convertedAt, nullDec("85")))
	got, err = s.store.GetNotification(s.ctx, n.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ConvertedAt)
	s.Equal(convertedAt, *got.ConvertedAt)
	s.Equal(first, *got.OpenedAt)
	s.True(got.PurchaseAmount.Decimal.Equal(dec("85")))
}

func (s *StoreSuite) TestNotification_ExplicitIDIsIdempotent() {
	it := s.createItem("Acme Dutch Oven", "100")
	id := uuid.NewString()
	in := CreateNotificationInput{ID: id, UserID: it.UserID, ItemID: it.ID, Type: NotificationDeadLink}

	first, err := s.store.CreateNotification(s.ctx, in)
	s.Require().NoError(err)
	s.Equal(id, first.ID)

	s.clock = s.clock.Add(time.Hour)
	second, err := s.store.CreateNotification(s.ctx, in)
	s.Require().NoError(err)
	s.Equal(first.CreatedAt, second.CreatedAt)
}

func (s *StoreSuite) TestNotification_NotFound() {
	_, err := s.store.MarkNotificationOpened(s.ctx, "missing", s.clock)
	s.Require().ErrorIs(err, ErrNotFound)
	s.Require().ErrorIs(s.store.MarkNotificationSent(s.ctx, "missing", s.clock), ErrNotFound)
	s.Require().ErrorIs(s.store.MarkNotificationConverted(s.ctx, "missing", s.clock, decimal.NullDecimal{}), ErrNotFound)

	_, err = s.store.CreateNotification(s.ctx, CreateNotificationInput{UserID: "u", ItemID: "i", Type: "bogus"})
	s.Require().Error(err)
}

func TestStore_DisabledDatabase(t *testing.T) {
	conn, backend, err := db.Open(&config.Config{})
	require.NoError(t, err)
	require.Equal(t, db.BackendDisabled, backend)

	store := NewStore(NewStoreParams{DB: conn, Backend: backend, Logger: zap.NewNop().Sugar()})
	require.False(t, store.Enabled())

	_, err = store.GetItem(context.Background(), "x")
	require.True(t, errors.Is(err, db.ErrDisabled))
}
