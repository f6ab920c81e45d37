package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// LocalProvider stores snapshots as files in a directory on local disk.
// Snapshot files hold encrypted payloads only, but are still written with
// owner-only permissions.
type LocalProvider struct {
	dir string
}

// NewLocalProvider creates a local snapshot provider rooted at dir,
// creating the directory if needed.
func NewLocalProvider(dir string) (*LocalProvider, error) {
	if dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &LocalProvider{dir: dir}, nil
}

func (p *LocalProvider) Name() string { return "local" }

// Upload copies the staged snapshot into the backup directory.
func (p *LocalProvider) Upload(_ context.Context, localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open snapshot file: %w", err)
	}
	defer src.Close()

	key := filepath.Base(localPath)
	dst, err := os.OpenFile(filepath.Join(p.dir, key), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create snapshot %s: %w", key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write snapshot %s: %w", key, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close snapshot %s: %w", key, err)
	}

	slog.Info("backup stored", "dir", p.dir, "key", key)
	return key, nil
}

// List returns all snapshots in the backup directory, sorted newest-first.
func (p *LocalProvider) List(_ context.Context) ([]Snapshot, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat snapshot %s: %w", e.Name(), err)
		}
		snaps = append(snaps, Snapshot{
			Key:       e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	return snaps, nil
}

// Delete removes a single snapshot file. Keys with path separators are
// rejected so a stored key can never escape the backup directory.
func (p *LocalProvider) Delete(_ context.Context, key string) error {
	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("invalid snapshot key %q", key)
	}
	if err := os.Remove(filepath.Join(p.dir, key)); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	slog.Info("backup deleted", "dir", p.dir, "key", key)
	return nil
}
