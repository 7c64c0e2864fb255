package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DraftPurger removes drafts older than maxAge
type DraftPurger interface {
	PurgeDrafts(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Reaper disposes idle sessions on a fixed interval
type Reaper struct {
	manager  *Manager
	interval time.Duration
	ttl      time.Duration
	logger   *zap.Logger

	purger   DraftPurger
	draftTTL time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReaper creates a stopped reaper
func NewReaper(manager *Manager, interval, ttl time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		manager:  manager,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
	}
}

// PurgeDrafts makes each sweep also drop drafts older than maxAge. Call it
// before Start.
func (r *Reaper) PurgeDrafts(p DraftPurger, maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purger = p
	r.draftTTL = maxAge
}

// Start starts the reaper loop
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run(r.stopCh, r.doneCh)
}

// Stop stops the loop and waits for it to exit
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (r *Reaper) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	r.purge()
	reaped := r.manager.ReapIdle(r.ttl)
	active := r.manager.Len()
	if reaped > 0 {
		r.logger.Info("idle sessions reaped",
			zap.Int("reaped", reaped),
			zap.Int("active", active))
		return
	}
	r.logger.Debug("session sweep",
		zap.Int("active", active),
		zap.Duration("ttl", r.ttl))
}

func (r *Reaper) purge() {
	r.mu.Lock()
	p, maxAge := r.purger, r.draftTTL
	r.mu.Unlock()
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()
	n, err := p.PurgeDrafts(ctx, maxAge)
	if err != nil {
		r.logger.Warn("draft purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("stale drafts purged", zap.Int64("purged", n))
	}
}
