package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/metrics"

	"github.com/sirupsen/logrus"
)

// ErrSchedulerRunning is returned by Start when the loop is already running
var ErrSchedulerRunning = errors.New("scheduler already running")

// Scheduler runs the due-item scan on a fixed interval. At most one scan runs
// at a time; ticks that arrive during a scan are skipped.
type Scheduler struct {
	scanner  ScanRunner
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	scanning atomic.Bool
	inFlight sync.WaitGroup
}

// SchedulerOption customizes a Scheduler
type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now as the source of the scan instant
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(scanner ScanRunner, interval time.Duration, logger *logrus.Logger, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = constants.DefaultScanIntervalSec * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scheduler{
		scanner:  scanner,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop and returns immediately. The first scan runs right
// away so posts that came due while the process was down go out promptly.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.running = true

	s.logger.WithField("interval", s.interval.String()).Info("Starting post scheduler")
	go s.loop(loopCtx, s.loopDone)
	return nil
}

// Stop cancels future ticks and waits for an in-flight scan to finish. The
// scan itself is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.mu.Unlock()

	if cancel == nil {
		s.inFlight.Wait()
		return
	}

	cancel()
	<-done
	s.inFlight.Wait()

	s.mu.Lock()
	if s.loopDone == done {
		s.running = false
		s.cancel = nil
	}
	s.mu.Unlock()

	s.logger.Info("Post scheduler stopped")
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsScanning reports whether a scan is in progress
func (s *Scheduler) IsScanning() bool {
	return s.scanning.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.markLoopExited(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler context cancelled, stopping loop")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// markLoopExited clears the running flag when the loop ends because its
// parent context was cancelled rather than through Stop.
func (s *Scheduler) markLoopExited(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopDone == done {
		s.running = false
	}
}

// tick starts a scan unless one is already running
func (s *Scheduler) tick(ctx context.Context) {
	if !s.scanning.CompareAndSwap(false, true) {
		metrics.IncrementCounter(metrics.ScanTicksSkipped, nil, "Ticks skipped because a scan was running")
		s.logger.Debug("Skipping scan: previous scan still running")
		return
	}

	scanCtx := context.WithoutCancel(ctx)
	now := s.now()

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer s.scanning.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("panic", r).Error("Recovered panic in due-post scan")
			}
		}()

		if _, err := s.scanner.RunOnce(scanCtx, now); err != nil {
			s.logger.WithError(err).Error("Due-post scan failed, retrying next tick")
		}
	}()
}
