package deadlinks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/app/inngest/deadlink"
	pkginngest "joinpounce/internal/pkg/inngest"
	"joinpounce/internal/pkg/webpage"
)

type pagedStore struct {
	items []dao.Item
	calls int
}

func (s *pagedStore) ListActiveItems(_ context.Context, limit, offset int) ([]dao.Item, error) {
	s.calls++
	if offset >= len(s.items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.items) {
		end = len(s.items)
	}
	return s.items[offset:end], nil
}

type fakeProber map[string]webpage.Liveness

func (p fakeProber) Probe(_ context.Context, raw string) (webpage.Liveness, error) {
	l, ok := p[raw]
	if !ok {
		return webpage.Liveness{}, errors.New("dial tcp: timeout")
	}
	return l, nil
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
	return "id", nil
}

func newScanner(store Store, prober Prober, sender pkginngest.EventSender) (*Scanner, *[]time.Duration) {
	var sleeps []time.Duration
	return &Scanner{
		store:  store,
		prober: prober,
		events: sender,
		delay:  time.Second,
		batch:  2,
		logger: zap.NewNop().Sugar(),
		now:    func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) },
		sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}, &sleeps
}

func item(i int) dao.Item {
	return dao.Item{ID: fmt.Sprintf("item-%d", i), URL: fmt.Sprintf("https://www.walmart.com/ip/%d", i)}
}

func TestScanOnce_ReportsDeadLinks(t *testing.T) {
	t.Parallel()

	store := &pagedStore{items: []dao.Item{item(1), item(2), item(3), item(4), item(5)}}
	prober := fakeProber{
		item(1).URL: {Status: 200, Reason: webpage.ReasonOK},
		item(2).URL: {Status: 404, Dead: true, Reason: webpage.ReasonNotFound},
		item(3).URL: {Status: 200, Dead: true, Reason: webpage.ReasonRedirectedHome, FinalURL: "https://www.walmart.com/"},
		item(4).URL: {Status: 503, Reason: webpage.ReasonUnknown},
	}
	sender := &fakeSender{}
	s, sleeps := newScanner(store, prober, sender)

	st, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{Checked: 5, Dead: 2, Errors: 1}, st)
	require.Equal(t, 3, store.calls)
	require.Len(t, *sleeps, 4)
	require.Equal(t, time.Second, (*sleeps)[0])

	require.Len(t, sender.events, 2)
	require.Equal(t, deadlink.DeadDetectedEventName, sender.events[0].Name)
	require.Equal(t, deadlink.EventID("item-2"), *sender.events[0].ID)
	require.Equal(t, "not_found", sender.events[0].Data["reason"])
	require.Equal(t, "redirected_home", sender.events[1].Data["reason"])
	require.Equal(t, deadlink.SourceScanner, sender.events[1].Data["source"])
}

func TestScanOnce_StopsWhenInngestDisabled(t *testing.T) {
	t.Parallel()

	store := &pagedStore{items: []dao.Item{item(1), item(2)}}
	prober := fakeProber{
		item(1).URL: {Status: 410, Dead: true, Reason: webpage.ReasonGone},
		item(2).URL: {Status: 410, Dead: true, Reason: webpage.ReasonGone},
	}
	s, _ := newScanner(store, prober, &fakeSender{err: pkginngest.ErrDisabled})

	st, err := s.ScanOnce(context.Background())
	require.ErrorIs(t, err, pkginngest.ErrDisabled)
	require.Equal(t, 1, st.Checked)
}

func TestScanOnce_Cancelled(t *testing.T) {
	t.Parallel()

	store := &pagedStore{items: []dao.Item{item(1), item(2)}}
	s, _ := newScanner(store, fakeProber{item(1).URL: {Status: 200}}, &fakeSender{})
	s.sleep = sleepCtx
	s.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := s.ScanOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, st.Checked)
}

func TestScanner_StartStop(t *testing.T) {
	t.Parallel()

	store := &pagedStore{}
	s, _ := newScanner(store, fakeProber{}, &fakeSender{})
	s.interval = time.Hour

	require.NoError(t, s.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, ctx.Err())
}
