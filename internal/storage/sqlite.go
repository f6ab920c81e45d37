package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// defaultQueryTimeout bounds every store call so a wedged database surfaces
// as an error instead of blocking request handlers.
const defaultQueryTimeout = 10 * time.Second

// SQLiteStoreConfig holds tuning parameters for the SQLite store.
type SQLiteStoreConfig struct {
	QueryTimeout time.Duration // 0 = default (10s)
}

// SQLiteStore implements Store using SQLite in WAL mode.
type SQLiteStore struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewSQLiteStore opens (or creates) a SQLite database at path with WAL mode enabled.
func NewSQLiteStore(path string, cfgs ...SQLiteStoreConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single connection: SQLite allows one writer, and the conditional
	// UPDATE/DELETE statements below rely on statement-level atomicity.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	timeout := defaultQueryTimeout
	if len(cfgs) > 0 && cfgs[0].QueryTimeout > 0 {
		timeout = cfgs[0].QueryTimeout
	}

	s := &SQLiteStore{db: db, queryTimeout: timeout}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// bound derives a context with the store's query timeout.
func (s *SQLiteStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS secrets (
    id TEXT PRIMARY KEY,
    ttl INTEGER NOT NULL,
    uid TEXT NOT NULL DEFAULT '',
    creator_uid TEXT NOT NULL DEFAULT '',
    ciphertext TEXT NOT NULL,
    iv TEXT NOT NULL,
    salt TEXT NOT NULL,
    custom_name TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_secrets_uid_ttl_created ON secrets(uid, ttl, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_secrets_creator_uid_ttl ON secrets(creator_uid, uid, ttl);
CREATE INDEX IF NOT EXISTS idx_secrets_ttl_created ON secrets(ttl, created_at);
`

func (s *SQLiteStore) Create(ctx context.Context, sec *Secret) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (id, ttl, uid, creator_uid, ciphertext, iv, salt, custom_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sec.ID, sec.TTL, sec.Owner, sec.CreatorUID, sec.Ciphertext, sec.IV, sec.Salt, sec.CustomName, sec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("create secret: %w", err)
	}
	return nil
}

// isUniqueViolation detects a primary-key collision. The modernc driver
// reports SQLITE_CONSTRAINT errors as formatted strings rather than a typed
// error, so match on the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Secret, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, ttl, uid, creator_uid, ciphertext, iv, salt, custom_name, created_at
		 FROM secrets WHERE id=?`, id)

	sec := &Secret{}
	err := row.Scan(&sec.ID, &sec.TTL, &sec.Owner, &sec.CreatorUID,
		&sec.Ciphertext, &sec.IV, &sec.Salt, &sec.CustomName, &sec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return sec, nil
}

// Claim performs the one-time ownership transfer. The ownership check lives
// inside the UPDATE's WHERE clause, so two racing claims on the same id
// resolve to exactly one winner at the statement level.
func (s *SQLiteStore) Claim(ctx context.Context, id, newOwner, ciphertext, iv, salt string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE secrets SET uid=?, ciphertext=?, iv=?, salt=?
		 WHERE id=? AND uid=''`,
		newOwner, ciphertext, iv, salt, id)
	if err != nil {
		return fmt.Errorf("claim secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim secret rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Zero rows: either the id does not exist or someone else won the race.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM secrets WHERE id=?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("claim secret recheck: %w", err)
	}
	return ErrAlreadyOwned
}

func (s *SQLiteStore) Rename(ctx context.Context, id, uid, customName string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE secrets SET custom_name=? WHERE id=? AND uid=?`,
		customName, id, uid)
	if err != nil {
		return fmt.Errorf("rename secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename secret rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id, uid string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE id=? AND (uid=? OR (uid='' AND creator_uid=?))`,
		id, uid, uid)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete secret rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListByOwner(ctx context.Context, uid string, page, perPage int, now int64) (*SecretPage, error) {
	return s.listPage(ctx,
		`SELECT COUNT(*) FROM secrets WHERE uid=? AND (ttl > ? OR ttl = ?)`,
		`SELECT id, custom_name, ttl, created_at FROM secrets
		 WHERE uid=? AND (ttl > ? OR ttl = ?)
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		[]any{uid, now, PermanentTTL}, page, perPage)
}

func (s *SQLiteStore) ListPending(ctx context.Context, creatorUID string, page, perPage int, now int64) (*SecretPage, error) {
	return s.listPage(ctx,
		`SELECT COUNT(*) FROM secrets WHERE creator_uid=? AND uid='' AND (ttl > ? OR ttl = ?)`,
		`SELECT id, custom_name, ttl, created_at FROM secrets
		 WHERE creator_uid=? AND uid='' AND (ttl > ? OR ttl = ?)
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		[]any{creatorUID, now, PermanentTTL}, page, perPage)
}

// listPage runs a COUNT plus a page query sharing the same filter args.
// Count and page run as separate statements; a concurrent claim or delete
// can skew the total by a row, which listing consumers tolerate.
func (s *SQLiteStore) listPage(ctx context.Context, countQuery, pageQuery string, args []any, page, perPage int) (*SecretPage, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count secrets: %w", err)
	}

	offset := (page - 1) * perPage
	rows, err := s.db.QueryContext(ctx, pageQuery, append(args, perPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	result := &SecretPage{
		Secrets: []SecretSummary{},
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasMore: offset+perPage < total,
	}
	for rows.Next() {
		var sum SecretSummary
		if err := rows.Scan(&sum.ID, &sum.CustomName, &sum.TTL, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan secret row: %w", err)
		}
		result.Secrets = append(result.Secrets, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list secrets rows: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) PurgeExpiredOrStale(ctx context.Context, now, retentionSeconds int64) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE (ttl < ? AND ttl != ?) OR created_at < ?`,
		now, PermanentTTL, now-retentionSeconds)
	if err != nil {
		return 0, fmt.Errorf("purge secrets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge secrets rows affected: %w", err)
	}
	return n, nil
}

// Backup writes a consistent snapshot of the database to destPath using
// VACUUM INTO. The destination must not already exist.
func (s *SQLiteStore) Backup(ctx context.Context, destPath string) error {
	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath)
	if err != nil {
		return fmt.Errorf("backup database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountLive(ctx context.Context, now int64) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM secrets WHERE ttl > ? OR ttl = ?`, now, PermanentTTL).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live secrets: %w", err)
	}
	return n, nil
}
