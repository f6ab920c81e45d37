package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Source produces a consistent snapshot of the database at the given path.
type Source interface {
	Backup(ctx context.Context, destPath string) error
}

// Runner stages a database snapshot, hands it to a Provider, and prunes
// snapshots beyond the retention count.
type Runner struct {
	src      Source
	provider Provider
	keep     int // snapshots to retain, 0 = unlimited

	now func() time.Time
}

// NewRunner creates a backup runner. keep limits how many snapshots the
// provider retains after each run; 0 disables pruning.
func NewRunner(src Source, provider Provider, keep int) *Runner {
	return &Runner{
		src:      src,
		provider: provider,
		keep:     keep,
		now:      time.Now,
	}
}

// Run takes one snapshot and returns the key it was stored under. The staged
// file is removed after upload; pruning failures are logged but do not fail
// the run, since the new snapshot is already safe.
func (r *Runner) Run(ctx context.Context) (string, error) {
	name := fmt.Sprintf("inigma-%s.db", r.now().UTC().Format("20060102-150405"))
	staged := filepath.Join(os.TempDir(), name)

	// VACUUM INTO refuses to overwrite, so clear any staged file left behind
	// by a crashed run.
	_ = os.Remove(staged)

	if err := r.src.Backup(ctx, staged); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}
	defer os.Remove(staged)

	key, err := r.provider.Upload(ctx, staged)
	if err != nil {
		return "", fmt.Errorf("store snapshot via %s: %w", r.provider.Name(), err)
	}

	if r.keep > 0 {
		pruned, err := Prune(ctx, r.provider, r.keep)
		if err != nil {
			slog.Warn("prune old snapshots failed", "provider", r.provider.Name(), "error", err)
		} else if pruned > 0 {
			slog.Info("pruned old snapshots", "provider", r.provider.Name(), "count", pruned)
		}
	}

	return key, nil
}
