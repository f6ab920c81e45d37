package backup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inigma_backup_runs_total",
		Help: "Backup runs by result.",
	}, []string{"result"})
	lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inigma_backup_last_success_timestamp_seconds",
		Help: "Unix time of the last successful backup run.",
	})
)

func init() {
	prometheus.MustRegister(runsTotal, lastSuccess)
}

// Scheduler runs periodic backups via a background goroutine.
type Scheduler struct {
	runFn    func(ctx context.Context) (string, error)
	interval time.Duration
	mu       sync.Mutex // prevent concurrent runs (scheduled + on-demand)
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates and starts a periodic backup scheduler around runFn,
// typically (*Runner).Run. If interval is 0, no goroutine is started and
// backups happen only on demand.
func NewScheduler(runFn func(ctx context.Context) (string, error), interval time.Duration) *Scheduler {
	s := &Scheduler{
		runFn:    runFn,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
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
				slog.Error("scheduled backup failed", "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

// RunOnce executes a single backup and returns the stored snapshot key.
// Safe to call concurrently with the ticker; the mutex ensures only one
// backup runs at a time.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.runFn(ctx)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	runsTotal.WithLabelValues("ok").Inc()
	lastSuccess.SetToCurrentTime()
	slog.Info("backup completed", "key", key)
	return key, nil
}

// Shutdown stops the periodic scheduler and waits for it to finish.
func (s *Scheduler) Shutdown() {
	close(s.stop)
	<-s.done
}
