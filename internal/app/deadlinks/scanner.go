package deadlinks

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/app/dao"
	"joinpounce/internal/app/inngest/deadlink"
	pkginngest "joinpounce/internal/pkg/inngest"
	"joinpounce/internal/pkg/webpage"
)

type Store interface {
	ListActiveItems(ctx context.Context, limit, offset int) ([]dao.Item, error)
}

type Prober interface {
	Probe(ctx context.Context, rawURL string) (webpage.Liveness, error)
}

type Stats struct {
	Checked int
	Dead    int
	Errors  int
}

// Scanner probes every tracked link and reports the dead ones to the
// dead-link function. Probes are spaced out so retailers are not hammered.
type Scanner struct {
	store    Store
	prober   Prober
	events   pkginngest.EventSender
	interval time.Duration
	delay    time.Duration
	batch    int
	logger   *zap.SugaredLogger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

type NewScannerParams struct {
	fx.In

	Config *config.Config
	Store  *dao.Store
	Web    *webpage.Client
	Events pkginngest.EventSender
	Logger *zap.SugaredLogger
}

func NewScanner(p NewScannerParams) *Scanner {
	batch := p.Config.DeadLinks.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Scanner{
		store:    p.Store,
		prober:   p.Web,
		events:   p.Events,
		interval: p.Config.DeadLinks.Interval,
		delay:    p.Config.DeadLinks.Delay,
		batch:    batch,
		logger:   p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ScanOnce walks all active items once. A probe that cannot reach the
// retailer counts as an error, not a dead link.
func (s *Scanner) ScanOnce(ctx context.Context) (Stats, error) {
	var st Stats
	for offset := 0; ; offset += s.batch {
		items, err := s.store.ListActiveItems(ctx, s.batch, offset)
		if err != nil {
			return st, err
		}
		for _, it := range items {
			if st.Checked > 0 {
				if err := s.sleep(ctx, s.delay); err != nil {
					return st, err
				}
			}
			st.Checked++

			target := it.URL
			if target == "" {
				target = it.CanonicalURL
			}
			l, err := s.prober.Probe(ctx, target)
			if err != nil {
				st.Errors++
				s.logger.Warnw("dead_link_probe_failed", "item_id", it.ID, "url", target, "err", err)
				continue
			}
			if !l.Dead {
				continue
			}

			st.Dead++
			evt := deadlink.NewDeadDetectedEvent(deadlink.DeadDetectedEventData{
				ItemID:   it.ID,
				Reason:   l.Reason,
				FinalURL: l.FinalURL,
				Source:   deadlink.SourceScanner,
			}, s.now())
			if _, err := s.events.Send(ctx, evt); err != nil {
				if errors.Is(err, pkginngest.ErrDisabled) {
					return st, err
				}
				st.Errors++
				s.logger.Errorw("dead_link_event_send_failed", "item_id", it.ID, "err", err)
				continue
			}
			s.logger.Infow("dead_link_detected", "item_id", it.ID, "url", target, "reason", l.Reason, "status", l.Status)
		}
		if len(items) < s.batch {
			return st, nil
		}
	}
}

// Start scans once immediately and then on every interval tick until Stop.
func (s *Scanner) Start(_ context.Context) error {
	if s.interval <= 0 {
		s.logger.Infow("dead_link_scanner_disabled", "reason", "no interval")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			s.runOnce(runCtx)
			select {
			case <-runCtx.Done():
				return
			case <-t.C:
			}
		}
	}()

	s.logger.Infow("dead_link_scanner_started", "interval", s.interval.String(), "delay", s.delay.String(), "batch", s.batch)
	return nil
}

func (s *Scanner) runOnce(ctx context.Context) {
	start := time.Now()
	st, err := s.ScanOnce(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, pkginngest.ErrDisabled):
		s.logger.Warnw("dead_link_scan_skipped", "reason", "inngest disabled", "checked", st.Checked)
		return
	case err != nil:
		s.logger.Errorw("dead_link_scan_failed", "checked", st.Checked, "err", err)
		return
	}
	s.logger.Infow("dead_link_scan_finished",
		"checked", st.Checked,
		"dead", st.Dead,
		"errors", st.Errors,
		"duration", time.Since(start),
	)
}

func (s *Scanner) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
