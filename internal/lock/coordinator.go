package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/HyphaGroup/lockstep/internal/auth"
	"github.com/HyphaGroup/lockstep/internal/logger"
	"github.com/HyphaGroup/lockstep/internal/metrics"
	"github.com/HyphaGroup/lockstep/internal/realtime"
)

// Notifier pushes lock state changes to connected clients. Satisfied by
// *realtime.Broadcaster.
type Notifier interface {
	Broadcast(eventType realtime.EventType, payload map[string]interface{}, triggeredBy string)
}

// Presence answers whether a holder currently has an open stream connection.
// Satisfied by *realtime.Registry.
type Presence interface {
	IsHolderConnected(holderID string) bool
}

// AcquireResult is the outcome of an acquire attempt. A conflict is a
// first-class result, not an error: Granted=false with LockedBy set.
type AcquireResult struct {
	Granted  bool   `json:"granted"`
	Extended bool   `json:"extended"`
	Lock     *Lock  `json:"lock,omitempty"`
	LockedBy string `json:"lockedBy,omitempty"`
}

// Coordinator arbitrates lock acquire/extend/release/sweep against the store
// and notifies connected clients of state changes. The mutex serializes the
// lookup-then-write sequences so two in-process acquires on the same entity
// cannot both observe "no active lock".
type Coordinator struct {
	mu       sync.Mutex
	store    *Store
	presence Presence
	notifier Notifier
	lease    time.Duration
}

// NewCoordinator creates a lock coordinator. lease <= 0 uses DefaultLease.
func NewCoordinator(store *Store, presence Presence, notifier Notifier, lease time.Duration) *Coordinator {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Coordinator{
		store:    store,
		presence: presence,
		notifier: notifier,
		lease:    lease,
	}
}

// Acquire attempts to take or renew the lock on entityID for the given
// identity. Semantics:
//   - no lock, or an expired one: the stale row is removed and a fresh lock
//     is inserted (granted, not extended)
//   - active lock held by the requester: expiry is pushed out in place
//     (granted, extended); no event is emitted for a renew
//   - active lock held by someone else: rejected with the holder's label
//
// Mutual exclusion holds within one process; running multiple server
// processes against the same database would reintroduce a lookup-then-write
// race at the store level.
func (c *Coordinator) Acquire(entityID string, id auth.Identity, sessionID string) (*AcquireResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.store.GetByEntity(entityID)
	if err != nil && err != ErrLockNotFound {
		metrics.RecordLockOperation("acquire", "error")
		return nil, fmt.Errorf("failed to look up lock for %s: %w", entityID, err)
	}

	now := time.Now()

	if existing != nil && !existing.Expired(now) {
		if existing.HolderID == id.HolderID {
			// Same holder re-acquiring: idempotent renew, never a second row.
			expiresAt := now.Add(c.lease)
			if err := c.store.Extend(existing.ID, expiresAt); err != nil {
				metrics.RecordLockOperation("acquire", "error")
				return nil, fmt.Errorf("failed to extend lock %s: %w", existing.ID, err)
			}
			existing.ExpiresAt = expiresAt
			logger.Debug("Extended lock %s on %s for %s", existing.ID, entityID, id.Label)
			metrics.RecordLockOperation("acquire", "extended")
			return &AcquireResult{Granted: true, Extended: true, Lock: existing}, nil
		}

		// Someone else holds an active lock: reject without mutation.
		metrics.RecordLockOperation("acquire", "conflict")
		return &AcquireResult{Granted: false, LockedBy: existing.HolderLabel}, nil
	}

	if existing != nil {
		// Expired lock: treat as absent and clean it up.
		logger.Debug("Cleaning up expired lock %s on %s (was held by %s)", existing.ID, entityID, existing.HolderLabel)
		if err := c.store.Delete(existing.ID); err != nil {
			metrics.RecordLockOperation("acquire", "error")
			return nil, fmt.Errorf("failed to delete expired lock %s: %w", existing.ID, err)
		}
	}

	l := &Lock{
		EntityID:    entityID,
		HolderID:    id.HolderID,
		HolderLabel: id.Label,
		Kind:        KindEdit,
		SessionID:   sessionID,
		ExpiresAt:   now.Add(c.lease),
		CreatedAt:   now,
	}
	if err := c.store.Insert(l); err != nil {
		metrics.RecordLockOperation("acquire", "error")
		return nil, fmt.Errorf("failed to insert lock for %s: %w", entityID, err)
	}

	logger.Info("Lock %s acquired on %s by %s", l.ID, entityID, id.Label)
	metrics.RecordLockOperation("acquire", "granted")

	c.notifier.Broadcast(realtime.EventLockAcquired, map[string]interface{}{
		"entityId":    entityID,
		"holderLabel": id.Label,
		"lockId":      l.ID,
	}, id.Label)

	return &AcquireResult{Granted: true, Extended: false, Lock: l}, nil
}

// Release deletes the lock on entityID only if the requester holds it.
// Returns true when a lock was actually released.
func (c *Coordinator) Release(entityID string, id auth.Identity) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	released, err := c.store.DeleteOwned(entityID, id.HolderID)
	if err != nil {
		metrics.RecordLockOperation("release", "error")
		return false, fmt.Errorf("failed to release lock on %s: %w", entityID, err)
	}
	if !released {
		metrics.RecordLockOperation("release", "noop")
		return false, nil
	}

	logger.Info("Lock on %s released by %s", entityID, id.Label)
	metrics.RecordLockOperation("release", "released")

	c.notifier.Broadcast(realtime.EventLockReleased, map[string]interface{}{
		"entityId":    entityID,
		"holderLabel": id.Label,
	}, id.Label)

	return true, nil
}

// Check returns the active lock on entityID, or nil if none. Read-only.
func (c *Coordinator) Check(entityID string) (*Lock, error) {
	l, err := c.store.GetByEntity(entityID)
	if err == ErrLockNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if l.Expired(time.Now()) {
		return nil, nil
	}
	return l, nil
}

// Sweep opportunistically deletes expired locks whose holder no longer has
// an open stream connection, broadcasting a release for each. Expired locks
// of holders still connected are deliberately left alone: a connected holder
// is assumed to still want the lock, and cleanup happens when they
// disconnect or release explicitly.
//
// Liveness is inferred from registry presence rather than a heartbeat. After
// a process restart the registry is empty, so every expired lock looks
// disconnected until clients reconnect; the first sweep after a restart may
// therefore release locks of holders that are merely slow to reconnect.
func (c *Coordinator) Sweep() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired, err := c.store.ListExpired()
	if err != nil {
		metrics.RecordLockOperation("sweep", "error")
		return 0, fmt.Errorf("failed to list expired locks: %w", err)
	}

	swept := 0
	for _, l := range expired {
		if c.presence.IsHolderConnected(l.HolderID) {
			continue
		}

		if err := c.store.Delete(l.ID); err != nil {
			metrics.RecordLockOperation("sweep", "error")
			return swept, fmt.Errorf("failed to delete expired lock %s: %w", l.ID, err)
		}
		swept++

		logger.Info("Swept expired lock %s on %s (holder %s disconnected)", l.ID, l.EntityID, l.HolderLabel)
		c.notifier.Broadcast(realtime.EventLockReleased, map[string]interface{}{
			"entityId":    l.EntityID,
			"holderLabel": l.HolderLabel,
			"reason":      "session_disconnected",
		}, "system_cleanup")
	}

	if swept > 0 {
		metrics.RecordLockOperation("sweep", "swept")
	}
	return swept, nil
}

// PurgeExpired deletes every expired lock regardless of holder connectivity.
// Explicit maintenance; no release events are emitted since the locks were
// already invisible to acquisition logic.
func (c *Coordinator) PurgeExpired() (int, error) {
	cleaned, err := c.store.PurgeExpired()
	if err != nil {
		metrics.RecordLockOperation("purge", "error")
		return 0, err
	}
	if cleaned > 0 {
		logger.Info("Purged %d expired locks", cleaned)
	}
	metrics.RecordLockOperation("purge", "ok")
	return cleaned, nil
}

// ActiveLocks sweeps, then returns all remaining active locks. This is the
// backing call for the lock listing endpoint; sweeping on read keeps cleanup
// opportunistic instead of timer-driven.
func (c *Coordinator) ActiveLocks() ([]*Lock, error) {
	if _, err := c.Sweep(); err != nil {
		return nil, err
	}

	locks, err := c.store.ListActive()
	if err != nil {
		return nil, err
	}
	metrics.SetActiveLocks(float64(len(locks)))
	return locks, nil
}
