package storage

import (
	"context"
	"errors"
)

// PermanentTTL is the sentinel TTL meaning the secret never expires.
const PermanentTTL int64 = 9999999999

var (
	// ErrNotFound is returned when no record matches. Conditional writes
	// deliberately fold "access denied" into this error so callers cannot
	// distinguish a missing secret from one they may not touch.
	ErrNotFound = errors.New("secret not found")

	// ErrAlreadyOwned is returned by Claim when the secret has an owner.
	ErrAlreadyOwned = errors.New("secret already owned")

	// ErrDuplicateID is returned by Create on an id collision.
	ErrDuplicateID = errors.New("duplicate secret id")
)

// Secret is a stored encrypted payload plus its ownership and expiry state.
// Ciphertext, IV and Salt are produced by client-side encryption and are
// opaque to the server.
type Secret struct {
	ID         string
	TTL        int64 // absolute expiry in epoch seconds, or PermanentTTL
	Owner      string
	CreatorUID string
	Ciphertext string
	IV         string
	Salt       string
	CustomName string
	CreatedAt  int64
}

// Expired reports whether the secret is past its TTL at the given instant.
// A TTL equal to now counts as expired.
func (s *Secret) Expired(now int64) bool {
	return s.TTL != PermanentTTL && s.TTL <= now
}

// SecretSummary is one entry in a listing page.
type SecretSummary struct {
	ID         string
	CustomName string
	TTL        int64
	CreatedAt  int64
}

// SecretPage is one page of listing results.
type SecretPage struct {
	Secrets []SecretSummary
	Page    int
	PerPage int
	Total   int
	HasMore bool
}

// Store is the persistence interface for secrets. All conditional operations
// (Claim, Rename, Delete) must check their condition and mutate in a single
// atomic statement; a read followed by a write is not an acceptable
// implementation.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error

	// Create inserts a new secret. Returns ErrDuplicateID if the id exists.
	Create(ctx context.Context, s *Secret) error

	// Get returns the secret by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Secret, error)

	// Claim atomically sets the owner and replaces the payload, but only if
	// the secret is currently unowned. Under concurrent claims on the same
	// id exactly one caller succeeds; the rest get ErrAlreadyOwned.
	Claim(ctx context.Context, id, newOwner, ciphertext, iv, salt string) error

	// Rename updates the display name, gated on uid being the owner.
	// Returns ErrNotFound when the secret is absent or uid is not the owner.
	Rename(ctx context.Context, id, uid, customName string) error

	// Delete removes the secret if uid owns it, or created it and it is
	// still unclaimed. Returns ErrNotFound otherwise.
	Delete(ctx context.Context, id, uid string) error

	// ListByOwner returns a page of non-expired secrets owned by uid,
	// newest first.
	ListByOwner(ctx context.Context, uid string, page, perPage int, now int64) (*SecretPage, error)

	// ListPending returns a page of non-expired, still-unclaimed secrets
	// created by creatorUID, newest first.
	ListPending(ctx context.Context, creatorUID string, page, perPage int, now int64) (*SecretPage, error)

	// PurgeExpiredOrStale deletes every secret that is expired or was
	// created more than retentionSeconds ago, and returns the count removed.
	PurgeExpiredOrStale(ctx context.Context, now, retentionSeconds int64) (int64, error)

	// CountLive returns the number of non-expired secrets.
	CountLive(ctx context.Context, now int64) (int64, error)

	// Backup writes a consistent snapshot of the database to destPath.
	Backup(ctx context.Context, destPath string) error
}
