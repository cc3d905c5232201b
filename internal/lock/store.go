// Package lock implements persistent per-entity lease locks and the
// coordinator that arbitrates acquire/extend/release/sweep over them.
package lock

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultLease is the default lock lease length.
const DefaultLease = 15 * time.Minute

// KindEdit is the default lock kind.
const KindEdit = "edit"

var ErrLockNotFound = errors.New("lock not found")

// Lock is a time-bounded exclusive claim on an entity.
type Lock struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	HolderID    string    `json:"holder_id"`
	HolderLabel string    `json:"holder_label"`
	Kind        string    `json:"lock_kind"`
	SessionID   string    `json:"session_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the lock's lease has lapsed. An expired lock must
// be treated as absent by all acquisition logic, even if not yet deleted.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Store handles lock persistence. Locks survive process restarts; the
// in-memory connection registry does not.
type Store struct {
	db *sql.DB
}

// NewStore creates a new lock store with SQLite backend.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "locks.db")
	// WAL mode and busy timeout for concurrent acquire attempts
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS locks (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		holder_id TEXT NOT NULL,
		holder_label TEXT NOT NULL,
		lock_kind TEXT NOT NULL DEFAULT 'edit',
		session_id TEXT,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_locks_entity ON locks(entity_id);
	CREATE INDEX IF NOT EXISTS idx_locks_holder ON locks(holder_id);
	CREATE INDEX IF NOT EXISTS idx_locks_expires ON locks(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new lock. The ID is generated when empty.
func (s *Store) Insert(l *Lock) error {
	if l.ID == "" {
		l.ID = "lock_" + uuid.New().String()[:8]
	}
	if l.Kind == "" {
		l.Kind = KindEdit
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	var sessionID sql.NullString
	if l.SessionID != "" {
		sessionID = sql.NullString{String: l.SessionID, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO locks (id, entity_id, holder_id, holder_label, lock_kind, session_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.EntityID, l.HolderID, l.HolderLabel, l.Kind, sessionID, l.ExpiresAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lock: %w", err)
	}
	return nil
}

// GetByEntity returns the lock row for an entity regardless of expiry, or
// ErrLockNotFound. Callers decide what expiry means for them.
func (s *Store) GetByEntity(entityID string) (*Lock, error) {
	row := s.db.QueryRow(
		`SELECT id, entity_id, holder_id, holder_label, lock_kind, session_id, expires_at, created_at
		 FROM locks WHERE entity_id = ? LIMIT 1`, entityID,
	)
	return scanLock(row)
}

// Extend updates the lock's expiry in place (idempotent renew).
func (s *Store) Extend(lockID string, expiresAt time.Time) error {
	result, err := s.db.Exec(`UPDATE locks SET expires_at = ? WHERE id = ?`, expiresAt, lockID)
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrLockNotFound
	}
	return nil
}

// Delete removes a lock by id.
func (s *Store) Delete(lockID string) error {
	_, err := s.db.Exec(`DELETE FROM locks WHERE id = ?`, lockID)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

// DeleteOwned deletes the lock on entityID only if held by holderID.
// Returns true if a row was deleted.
func (s *Store) DeleteOwned(entityID, holderID string) (bool, error) {
	result, err := s.db.Exec(
		`DELETE FROM locks WHERE entity_id = ? AND holder_id = ?`, entityID, holderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete lock: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListActive returns all locks whose lease has not lapsed.
func (s *Store) ListActive() ([]*Lock, error) {
	return s.list(`SELECT id, entity_id, holder_id, holder_label, lock_kind, session_id, expires_at, created_at
		FROM locks WHERE expires_at > ? ORDER BY created_at`, time.Now())
}

// ListExpired returns all locks whose lease has lapsed.
func (s *Store) ListExpired() ([]*Lock, error) {
	return s.list(`SELECT id, entity_id, holder_id, holder_label, lock_kind, session_id, expires_at, created_at
		FROM locks WHERE expires_at <= ? ORDER BY created_at`, time.Now())
}

// PurgeExpired deletes every expired lock regardless of holder connectivity.
// This is the explicit maintenance path; the sweep is the polite one.
func (s *Store) PurgeExpired() (int, error) {
	result, err := s.db.Exec(`DELETE FROM locks WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) list(query string, args ...interface{}) ([]*Lock, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var locks []*Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLock(row scanner) (*Lock, error) {
	var l Lock
	var sessionID sql.NullString

	err := row.Scan(&l.ID, &l.EntityID, &l.HolderID, &l.HolderLabel, &l.Kind, &sessionID, &l.ExpiresAt, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lock: %w", err)
	}

	if sessionID.Valid {
		l.SessionID = sessionID.String
	}
	return &l, nil
}
