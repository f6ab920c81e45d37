// Package cleanup runs the periodic purge of expired and stale secrets.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	purgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inigma_cleanup_purged_secrets_total",
		Help: "Secrets removed by the cleanup scheduler.",
	})
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inigma_cleanup_runs_total",
		Help: "Cleanup runs by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(purgedTotal, runsTotal)
}

// DefaultInterval is the purge cadence.
const DefaultInterval = 24 * time.Hour

// runTimeout bounds a single purge so a wedged store cannot pin the
// scheduler goroutine.
const runTimeout = 30 * time.Second

// Scheduler runs periodic cleanups via a background goroutine. The purge is
// best effort: a failed run is logged and retried on the next tick.
type Scheduler struct {
	purgeFn  func(ctx context.Context) (int64, error)
	interval time.Duration
	mu       sync.Mutex // prevent concurrent runs (scheduled + on-demand)
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a cleanup scheduler and runs the purge once
// immediately, then on every interval tick. If interval is 0, no goroutine
// is started and only the startup run happens.
func NewScheduler(purgeFn func(ctx context.Context) (int64, error), interval time.Duration) *Scheduler {
	s := &Scheduler{
		purgeFn:  purgeFn,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	// Startup run, so a long-lived process does not wait a full day before
	// its first purge.
	if _, err := s.RunOnce(context.Background()); err != nil {
		slog.Error("startup cleanup failed", "error", err)
	}

	if interval > 0 {
		go s.run()
	} else {
		close(s.done)
	}

	return s
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(context.Background()); err != nil {
				slog.Error("scheduled cleanup failed", "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

// RunOnce executes a single purge and returns the number of secrets removed.
// Safe to call concurrently with the ticker; the mutex ensures only one
// purge runs at a time.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	n, err := s.purgeFn(ctx)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	runsTotal.WithLabelValues("ok").Inc()
	purgedTotal.Add(float64(n))
	if n > 0 {
		slog.Info("cleanup removed secrets", "count", n)
	}
	return n, nil
}

// Shutdown stops the periodic scheduler and waits for it to finish.
func (s *Scheduler) Shutdown() {
	close(s.stop)
	<-s.done
}
