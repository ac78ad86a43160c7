// Package worker runs background maintenance against the profile engine.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rbrinkke/userprofile-api/internal/logging"
	"github.com/rbrinkke/userprofile-api/internal/retry"
)

// Expirer is the slice of the engine the sweeper drives
type Expirer interface {
	ExpireBans(ctx context.Context, now time.Time, limit int) (int, error)
	ExpireSubscriptions(ctx context.Context, now time.Time, limit int) (int, error)
}

// SweeperConfig holds configuration for an expiry sweeper
type SweeperConfig struct {
	Engine    Expirer
	Interval  time.Duration
	BatchSize int
	Logger    *logging.Logger
	Clock     func() time.Time
}

// ExpirySweeper periodically lifts lapsed temporary bans and downgrades
// lapsed subscriptions
type ExpirySweeper struct {
	engine    Expirer
	interval  time.Duration
	batchSize int
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	status   SweeperStatus
	retryCfg *retry.Config
}

// SweeperStatus reports what the sweeper has done so far
type SweeperStatus struct {
	Running              bool      `json:"running"`
	LastRun              time.Time `json:"lastRun"`
	Runs                 int       `json:"runs"`
	BansLifted           int       `json:"bansLifted"`
	SubscriptionsExpired int       `json:"subscriptionsExpired"`
	LastError            string    `json:"lastError,omitempty"`
}

// NewExpirySweeper creates a new sweeper
func NewExpirySweeper(cfg *SweeperConfig) (*ExpirySweeper, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ExpirySweeper{
		engine:    cfg.Engine,
		interval:  interval,
		batchSize: batch,
		logger:    logger.WithField("component", "expiry_sweeper"),
		now:       clock,
		retryCfg:  retry.TransientConfig(),
	}, nil
}

// Start runs one sweep immediately and then one per interval until Stop
// or ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("expiry sweeper is already running")
	}
	s.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"interval":   s.interval.String(),
		"batch_size": s.batchSize,
	}).Info("starting expiry sweeper")

	go s.loop(logging.WithLogger(ctx, s.logger), stopCh, doneCh)
	return nil
}

// Stop signals the loop and waits for the sweep in flight to finish
func (s *ExpirySweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("expiry sweeper is not running")
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		s.logger.Info("expiry sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("expiry sweeper stop timed out")
		return ctx.Err()
	}
}

// loop clears running on the way out, whether stopped or cancelled, so the
// sweeper can be started again.
func (s *ExpirySweeper) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass over both expiry kinds. Failures are recorded
// and logged; the next tick tries again.
func (s *ExpirySweeper) Sweep(ctx context.Context) {
	now := s.now()
	var bans, subs int
	var errs []string

	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context, _ int) error {
		n, err := s.engine.ExpireBans(ctx, now, s.batchSize)
		bans += n
		return err
	})
	if err != nil {
		s.logger.WithError(err).Error("ban expiry sweep failed")
		errs = append(errs, err.Error())
	}

	err = retry.Do(ctx, s.retryCfg, func(ctx context.Context, _ int) error {
		n, err := s.engine.ExpireSubscriptions(ctx, now, s.batchSize)
		subs += n
		return err
	})
	if err != nil {
		s.logger.WithError(err).Error("subscription expiry sweep failed")
		errs = append(errs, err.Error())
	}

	if bans > 0 || subs > 0 {
		s.logger.WithFields(map[string]interface{}{
			"bans_lifted":           bans,
			"subscriptions_expired": subs,
		}).Info("expiry sweep completed")
	}

	s.mu.Lock()
	s.status.LastRun = now
	s.status.Runs++
	s.status.BansLifted += bans
	s.status.SubscriptionsExpired += subs
	s.status.LastError = ""
	if len(errs) > 0 {
		s.status.LastError = errs[len(errs)-1]
	}
	s.mu.Unlock()
}

// GetStatus returns a snapshot of the sweeper state
func (s *ExpirySweeper) GetStatus() SweeperStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Running = s.running
	return st
}
