// Package backup snapshots the secrets database and prunes old snapshots.
package backup

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is one stored copy of the database.
type Snapshot struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// Provider stores database snapshots somewhere durable.
type Provider interface {
	// Upload ships a staged snapshot file and returns the key it is
	// stored under.
	Upload(ctx context.Context, localPath string) (key string, err error)

	// List returns every stored snapshot, newest first.
	List(ctx context.Context) ([]Snapshot, error)

	// Delete removes the snapshot stored under key.
	Delete(ctx context.Context, key string) error

	// Name identifies the provider in logs and errors.
	Name() string
}

// Prune trims a provider down to its newest keep snapshots and reports how
// many it removed. A keep of zero or less disables retention, so nothing is
// deleted.
func Prune(ctx context.Context, p Provider, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	snaps, err := p.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: list snapshots: %w", p.Name(), err)
	}
	excess := len(snaps) - keep
	if excess <= 0 {
		return 0, nil
	}

	// List is newest-first, so everything past keep is stale.
	for i, s := range snaps[keep:] {
		if err := p.Delete(ctx, s.Key); err != nil {
			return i, fmt.Errorf("%s: prune snapshot %s: %w", p.Name(), s.Key, err)
		}
	}
	return excess, nil
}
