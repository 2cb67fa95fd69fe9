package scheduler

import (
	"context"
	"sync"
	"time"

	"paisapro/cartworker/internal/cart"
	"paisapro/cartworker/logger"
	"paisapro/cartworker/services/publisher"
)

// Refresher is the slice of the cart service the scheduler drives.
type Refresher interface {
	StaleItems(ctx context.Context) ([]cart.StaleItem, error)
	PendingItems(ctx context.Context, listID int64) ([]cart.ListItem, error)
	RefreshItem(ctx context.Context, itemID int64) error
}

// Config carries the scheduler timing knobs.
type Config struct {
	// Interval between periodic refresh sweeps.
	Interval time.Duration
	// StartupDelay before the first sweep after Start.
	StartupDelay time.Duration
	// InterItemDelay spaces consecutive scrapes inside a sweep so the
	// retail sites see a trickle, not a burst.
	InterItemDelay time.Duration
}

// RunReport summarizes one refresh sweep.
type RunReport struct {
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
}

// Status is the scheduler's externally visible state.
type Status struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *RunReport `json:"last_run,omitempty"`
}

// Scheduler periodically refreshes stale cart items in the background.
// Each item is refreshed independently; one failure never aborts a sweep.
type Scheduler struct {
	refresher Refresher
	pub       publisher.Publisher
	cfg       Config
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	nextRun time.Time
	lastRun *RunReport
	wg      sync.WaitGroup
}

// New creates a scheduler. pub is trimmed after every full sweep so the
// price-update streams stay bounded.
func New(refresher Refresher, pub publisher.Publisher, cfg Config) *Scheduler {
	if pub == nil {
		pub = publisher.NoopPublisher{}
	}
	return &Scheduler{
		refresher: refresher,
		pub:       pub,
		cfg:       cfg,
		log:       logger.ForScheduler(),
	}
}

// Start launches the background loop: one sweep after the startup delay,
// then one per interval. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.nextRun = time.Now().Add(s.cfg.StartupDelay)

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("startup_delay", s.cfg.StartupDelay).
		Msg("Scheduler started")
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	startup := time.NewTimer(s.cfg.StartupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-startup.C:
	}
	s.runSweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		s.nextRun = time.Now().Add(s.cfg.Interval)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	report := s.RefreshAll(ctx)
	s.log.Info().
		Int("refreshed", report.Refreshed).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("Refresh sweep completed")
}

// RefreshAll refreshes every stale pending item once and records the sweep
// report. Also the handler behind the manual refresh-now endpoint.
func (s *Scheduler) RefreshAll(ctx context.Context) RunReport {
	report := RunReport{Started: time.Now()}

	stale, err := s.refresher.StaleItems(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list stale items")
		report.Elapsed = time.Since(report.Started)
		s.record(report)
		return report
	}
	s.log.Info().Int("stale", len(stale)).Msg("Refresh sweep starting")

	for _, item := range stale {
		if ctx.Err() != nil {
			break
		}
		if err := s.refresher.RefreshItem(ctx, item.ItemID); err != nil {
			report.Failed++
			s.log.Warn().Err(err).
				Int64("item_id", item.ItemID).
				Str("product", item.ProductName).
				Str("list", item.ListName).
				Msg("Item refresh failed")
		} else {
			report.Refreshed++
		}
		s.pause(ctx)
	}

	if err := s.pub.TrimStreams(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to trim price update streams")
	}

	report.Elapsed = time.Since(report.Started)
	s.record(report)
	return report
}

// RefreshList refreshes every pending item of one list regardless of
// freshness.
func (s *Scheduler) RefreshList(ctx context.Context, listID int64) (RunReport, error) {
	report := RunReport{Started: time.Now()}

	items, err := s.refresher.PendingItems(ctx, listID)
	if err != nil {
		return RunReport{}, err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := s.refresher.RefreshItem(ctx, item.ID); err != nil {
			report.Failed++
			s.log.Warn().Err(err).
				Int64("item_id", item.ID).
				Str("product", item.ProductName).
				Msg("Item refresh failed")
		} else {
			report.Refreshed++
		}
		s.pause(ctx)
	}

	report.Elapsed = time.Since(report.Started)
	return report, nil
}

func (s *Scheduler) pause(ctx context.Context) {
	if s.cfg.InterItemDelay <= 0 {
		return
	}
	t := time.NewTimer(s.cfg.InterItemDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Scheduler) record(report RunReport) {
	s.mu.Lock()
	s.lastRun = &report
	s.mu.Unlock()
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		Interval: s.cfg.Interval.String(),
		LastRun:  s.lastRun,
	}
	if s.running && !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	return st
}
