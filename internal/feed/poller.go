package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chicommute/internal/metrics"
	"chicommute/internal/transit"
)

// ErrorPolicy decides what happens to the last good snapshot when a tick fails.
type ErrorPolicy string

const (
	DiscardOnError  ErrorPolicy = "discard"
	PreserveOnError ErrorPolicy = "preserve"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", DiscardOnError:
		return DiscardOnError, nil
	case PreserveOnError:
		return PreserveOnError, nil
	}
	return "", fmt.Errorf("unknown feed error policy %q (want discard|preserve)", s)
}

type Fetcher interface {
	FetchAlerts(ctx context.Context) ([]transit.Alert, error)
	FetchPositions(ctx context.Context) ([]transit.VehiclePosition, error)
	FetchTripUpdates(ctx context.Context) ([]transit.TripUpdate, error)
}

type SnapshotPublisher interface {
	PublishSnapshot(snap Snapshot) error
}

// Status describes the freshness of the held snapshot.
type Status struct {
	UpdatedAt time.Time `json:"updatedAt"`
	LastError string    `json:"lastError,omitempty"`
	// Stale is set when a failed tick kept an older snapshot in place.
	Stale bool `json:"stale"`
}

// Poller refreshes the realtime trio on a fixed interval. A tick either
// replaces all three collections or none of them.
type Poller struct {
	fetcher  Fetcher
	pub      SnapshotPublisher
	interval time.Duration
	policy   ErrorPolicy
	metrics  *metrics.Collector

	tickMu sync.Mutex // serializes ticks and manual refreshes

	mu        sync.RWMutex
	snap      Snapshot
	updatedAt time.Time
	lastErr   error
	stale     bool

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

func NewPoller(f Fetcher, pub SnapshotPublisher, interval time.Duration, policy ErrorPolicy, m *metrics.Collector) *Poller {
	return &Poller{
		fetcher:  f,
		pub:      pub,
		interval: interval,
		policy:   policy,
		metrics:  m,
		snap:     emptySnapshot(),
	}
}

// Start launches the background loop. The first tick runs immediately.
func (p *Poller) Start(parent context.Context) {
	if p.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.refreshCancel = cancel
	p.refreshWG.Add(1)
	go func() {
		defer p.refreshWG.Done()
		if err := p.Refresh(ctx); err != nil {
			log.Printf("feed poll error: %v", err)
		}
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
					log.Printf("feed poll error: %v", err)
				}
			}
		}
	}()
}

func (p *Poller) Stop() {
	if p.refreshCancel != nil {
		p.refreshCancel()
	}
	p.refreshWG.Wait()
}

// Refresh runs one tick: the three fetches run concurrently and the snapshot
// is only replaced when all of them succeed. When ctx ends before the tick
// completes, Refresh returns ctx.Err() and leaves the snapshot and status as
// they were.
func (p *Poller) Refresh(ctx context.Context) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	start := time.Now()
	var next Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := p.fetcher.FetchAlerts(gctx)
		if err != nil {
			if ctx.Err() == nil {
				p.countFetchError("alerts")
			}
			return fmt.Errorf("alerts: %w", err)
		}
		next.Alerts = a
		return nil
	})
	g.Go(func() error {
		v, err := p.fetcher.FetchPositions(gctx)
		if err != nil {
			if ctx.Err() == nil {
				p.countFetchError("positions")
			}
			return fmt.Errorf("positions: %w", err)
		}
		next.Positions = v
		return nil
	})
	g.Go(func() error {
		tu, err := p.fetcher.FetchTripUpdates(gctx)
		if err != nil {
			if ctx.Err() == nil {
				p.countFetchError("tripUpdates")
			}
			return fmt.Errorf("trip updates: %w", err)
		}
		next.TripUpdates = tu
		return nil
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.metrics != nil {
		p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		if p.policy == PreserveOnError {
			p.stale = !p.updatedAt.IsZero()
		} else {
			p.snap = emptySnapshot()
			p.updatedAt = time.Time{}
			p.stale = false
		}
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.PollTicks.WithLabelValues("error").Inc()
		}
		return err
	}

	next = normalize(next)
	now := time.Now()
	p.mu.Lock()
	p.snap = next
	p.updatedAt = now
	p.lastErr = nil
	p.stale = false
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.PollTicks.WithLabelValues("ok").Inc()
		p.metrics.LastPollSuccess.Set(float64(now.Unix()))
		p.metrics.SnapshotRecords.WithLabelValues("alerts").Set(float64(len(next.Alerts)))
		p.metrics.SnapshotRecords.WithLabelValues("positions").Set(float64(len(next.Positions)))
		p.metrics.SnapshotRecords.WithLabelValues("tripUpdates").Set(float64(len(next.TripUpdates)))
	}
	log.Printf("feed refreshed: %d alerts, %d positions, %d trip updates (%s)",
		len(next.Alerts), len(next.Positions), len(next.TripUpdates), time.Since(start))

	if p.pub != nil {
		if err := p.pub.PublishSnapshot(next); err != nil {
			log.Printf("publish snapshot error: %v", err)
		}
	}
	return nil
}

// Snapshot returns the current collections. Callers must treat the slices as
// read-only; a refresh swaps in new slices rather than mutating these.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Status{UpdatedAt: p.updatedAt, Stale: p.stale}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

// LastError is the error of the most recent tick, nil after a success.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Poller) countFetchError(endpoint string) {
	if p.metrics != nil {
		p.metrics.FetchErrors.WithLabelValues(endpoint).Inc()
	}
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Alerts:      []transit.Alert{},
		Positions:   []transit.VehiclePosition{},
		TripUpdates: []transit.TripUpdate{},
	}
}

// normalize replaces nil collections so JSON consumers always see arrays.
func normalize(s Snapshot) Snapshot {
	if s.Alerts == nil {
		s.Alerts = []transit.Alert{}
	}
	if s.Positions == nil {
		s.Positions = []transit.VehiclePosition{}
	}
	if s.TripUpdates == nil {
		s.TripUpdates = []transit.TripUpdate{}
	}
	return s
}
