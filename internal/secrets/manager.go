// Package secrets implements the secret lifecycle: creation, the one-time
// claim transfer, ownership-gated mutation, expiry interpretation, and
// cleanup. All durable state lives in the storage layer; the manager is
// stateless between calls.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/idone-su/inigma/internal/storage"
)

const (
	// IDLength is the length of generated secret identifiers.
	IDLength = 25

	// MaxTTLDays is the longest non-permanent lifetime (1 year).
	MaxTTLDays = 365

	// MaxCustomNameLength caps the display label. The transport sanitizes
	// names before they reach the manager; this is the hard bound.
	MaxCustomNameLength = 100

	// DefaultRetentionDays is the age past which secrets are purged
	// regardless of TTL.
	DefaultRetentionDays = 50

	// DefaultPerPage and MaxPerPage bound listing page sizes.
	DefaultPerPage = 10
	MaxPerPage     = 50

	// createRetries bounds id regeneration on the (practically impossible)
	// random-id collision.
	createRetries = 3

	secondsPerDay = 24 * 60 * 60
)

var (
	// ErrExpired marks a secret past its TTL. Logically equivalent to
	// not-found for callers, kept distinct for logging and metrics.
	ErrExpired = errors.New("secret expired")

	// ErrDenied marks a view attempt by a uid that is not the owner.
	ErrDenied = errors.New("access denied")

	// ErrInvalidInput marks out-of-range ttl/page/perPage or malformed ids.
	// The transport validates first; the manager still rejects defensively.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable wraps underlying persistence failures. It is
	// never collapsed into not-found.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ManagerConfig holds tuning parameters for the lifecycle manager.
type ManagerConfig struct {
	Now           func() int64 // clock in epoch seconds; nil = time.Now
	RetentionDays int          // 0 = default (50)
}

// Manager owns the secret transition rules and expresses them as store
// operations with the correct conditions.
type Manager struct {
	store            storage.Store
	now              func() int64
	retentionSeconds int64
}

// NewManager creates a lifecycle manager on top of the given store.
func NewManager(store storage.Store, cfgs ...ManagerConfig) *Manager {
	now := func() int64 { return time.Now().Unix() }
	retention := DefaultRetentionDays
	if len(cfgs) > 0 {
		cfg := cfgs[0]
		if cfg.Now != nil {
			now = cfg.Now
		}
		if cfg.RetentionDays > 0 {
			retention = cfg.RetentionDays
		}
	}
	return &Manager{
		store:            store,
		now:              now,
		retentionSeconds: int64(retention) * secondsPerDay,
	}
}

// Ping reports whether the underlying store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// CreateParams are the inputs for a new secret.
type CreateParams struct {
	Ciphertext string
	IV         string
	Salt       string
	TTLDays    int // 0 = permanent
	CustomName string
	CreatorUID string
}

// Create stores a new unclaimed secret and returns its generated id.
// TTLDays 0 maps to the permanent sentinel; otherwise the absolute expiry is
// now + TTLDays in seconds. An id collision is retried with a fresh id a
// bounded number of times before failing.
func (m *Manager) Create(ctx context.Context, p CreateParams) (string, error) {
	if p.Ciphertext == "" || p.IV == "" || p.Salt == "" {
		return "", fmt.Errorf("%w: missing payload fields", ErrInvalidInput)
	}
	if p.TTLDays < 0 || p.TTLDays > MaxTTLDays {
		return "", fmt.Errorf("%w: ttl days out of range", ErrInvalidInput)
	}
	if len(p.CustomName) > MaxCustomNameLength {
		return "", fmt.Errorf("%w: custom name too long", ErrInvalidInput)
	}

	now := m.now()
	ttl := storage.PermanentTTL
	if p.TTLDays > 0 {
		ttl = now + int64(p.TTLDays)*secondsPerDay
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		err = m.store.Create(ctx, &storage.Secret{
			ID:         id,
			TTL:        ttl,
			Owner:      "",
			CreatorUID: p.CreatorUID,
			Ciphertext: p.Ciphertext,
			IV:         p.IV,
			Salt:       p.Salt,
			CustomName: p.CustomName,
			CreatedAt:  now,
		})
		if errors.Is(err, storage.ErrDuplicateID) {
			slog.Warn("secret id collision, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: exhausted id generation retries", storage.ErrDuplicateID)
}

// GenerateID returns a fresh URL-safe random identifier. The id space is
// large enough that collisions are negligible, but Create still handles them.
func GenerateID() (string, error) {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:])[:IDLength], nil
}

// ViewResult is the payload returned to a caller allowed to see a secret.
// Owner and creator tokens are deliberately absent.
type ViewResult struct {
	Ciphertext string
	IV         string
	Salt       string
	CustomName string
	IsOwner    bool
}

// View returns the secret payload when uid may see it: the secret exists,
// has not expired, and is either unclaimed or owned by uid.
func (m *Manager) View(ctx context.Context, id, uid string) (*ViewResult, error) {
	sec, err := m.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sec.Expired(m.now()) {
		return nil, ErrExpired
	}
	if sec.Owner != "" && sec.Owner != uid {
		return nil, ErrDenied
	}
	return &ViewResult{
		Ciphertext: sec.Ciphertext,
		IV:         sec.IV,
		Salt:       sec.Salt,
		CustomName: sec.CustomName,
		IsOwner:    sec.Owner == uid,
	}, nil
}

// Claim transfers ownership of an unclaimed secret to uid, replacing the
// payload with the caller's re-encrypted copy. Exactly one of any set of
// concurrent claims on the same id succeeds; the rest observe
// storage.ErrAlreadyOwned. The custom name is preserved across the claim.
func (m *Manager) Claim(ctx context.Context, id, uid, ciphertext, iv, salt string) error {
	if uid == "" {
		return fmt.Errorf("%w: empty uid", ErrInvalidInput)
	}
	if ciphertext == "" || iv == "" || salt == "" {
		return fmt.Errorf("%w: missing payload fields", ErrInvalidInput)
	}
	err := m.store.Claim(ctx, id, uid, ciphertext, iv, salt)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAlreadyOwned) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Rename updates the display name. Only the current owner may rename;
// absent and not-owned are reported uniformly as storage.ErrNotFound.
func (m *Manager) Rename(ctx context.Context, id, uid, customName string) error {
	if uid == "" {
		return fmt.Errorf("%w: empty uid", ErrInvalidInput)
	}
	if len(customName) > MaxCustomNameLength {
		return fmt.Errorf("%w: custom name too long", ErrInvalidInput)
	}
	err := m.store.Rename(ctx, id, uid, customName)
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Remove deletes the secret when uid owns it, or created it and it is still
// unclaimed.
func (m *Manager) Remove(ctx context.Context, id, uid string) error {
	if uid == "" {
		return fmt.Errorf("%w: empty uid", ErrInvalidInput)
	}
	err := m.store.Delete(ctx, id, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListEntry is one secret in a listing, with its remaining-time descriptor.
type ListEntry struct {
	ID         string
	CustomName string
	Remaining  TimeRemaining
}

// ListResult is one page of listed secrets.
type ListResult struct {
	Secrets []ListEntry
	Page    int
	PerPage int
	Total   int
	HasMore bool
}

// ListOwned returns a page of non-expired secrets owned by uid, newest first.
func (m *Manager) ListOwned(ctx context.Context, uid string, page, perPage int) (*ListResult, error) {
	page, perPage, err := normalizePagination(page, perPage)
	if err != nil {
		return nil, err
	}
	now := m.now()
	sp, err := m.store.ListByOwner(ctx, uid, page, perPage, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return m.toListResult(sp, now), nil
}

// ListPending returns a page of non-expired, unclaimed secrets created by
// creatorUID, newest first.
func (m *Manager) ListPending(ctx context.Context, creatorUID string, page, perPage int) (*ListResult, error) {
	page, perPage, err := normalizePagination(page, perPage)
	if err != nil {
		return nil, err
	}
	now := m.now()
	sp, err := m.store.ListPending(ctx, creatorUID, page, perPage, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return m.toListResult(sp, now), nil
}

func (m *Manager) toListResult(sp *storage.SecretPage, now int64) *ListResult {
	out := &ListResult{
		Secrets: make([]ListEntry, 0, len(sp.Secrets)),
		Page:    sp.Page,
		PerPage: sp.PerPage,
		Total:   sp.Total,
		HasMore: sp.HasMore,
	}
	for _, sum := range sp.Secrets {
		out.Secrets = append(out.Secrets, ListEntry{
			ID:         sum.ID,
			CustomName: sum.CustomName,
			Remaining:  Remaining(sum.TTL, now),
		})
	}
	return out
}

func normalizePagination(page, perPage int) (int, int, error) {
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", ErrInvalidInput)
	}
	if perPage < 1 || perPage > MaxPerPage {
		return 0, 0, fmt.Errorf("%w: per_page must be 1..%d", ErrInvalidInput, MaxPerPage)
	}
	return page, perPage, nil
}

// RunCleanup purges every secret that is expired or older than the retention
// ceiling and returns the count removed.
func (m *Manager) RunCleanup(ctx context.Context) (int64, error) {
	n, err := m.store.PurgeExpiredOrStale(ctx, m.now(), m.retentionSeconds)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// LiveCount returns the number of non-expired secrets, for metrics.
func (m *Manager) LiveCount(ctx context.Context) (int64, error) {
	return m.store.CountLive(ctx, m.now())
}
