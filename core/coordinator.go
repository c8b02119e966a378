/*
coordinator.go - Per-key serialization of slot and reservation operations

PURPOSE:
  The ConsistencyCoordinator serializes every slot-affecting operation per
  parking-space id and every reservation-affecting operation per slot number.
  Booking, cancellation and settlement all contend on the same slot-level key
  because they all read-then-write the same overlap set; add/remove/renumber
  contend on the space-level key.

LOCK MODEL:
  One mutex per key, created on first use and dropped when no goroutine holds
  or waits on it. Operations on the same key are serialized; operations on
  independent keys interleave freely. Locks are held only for the duration of
  one operation.

DEADLOCK AVOIDANCE:
  Settlement mutates two balances, but only inside the already-held slot lock;
  balances are not independently lockable. The only multi-lock holder is the
  renumber path, which takes the space lock and then the affected slot locks
  in ascending index order; no other path holds more than one lock, so no
  cycle can form.

SEE ALSO:
  - engine.go: The only caller; wraps every public operation in these locks
*/
package core

import (
	"sort"
	"sync"
)

// =============================================================================
// CONSISTENCY COORDINATOR
// =============================================================================

type ConsistencyCoordinator struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewConsistencyCoordinator() *ConsistencyCoordinator {
	return &ConsistencyCoordinator{locks: make(map[string]*keyLock)}
}

// WithSpaceLock runs fn while holding the lock for the parking space.
func (c *ConsistencyCoordinator) WithSpaceLock(spaceID SpaceID, fn func() error) error {
	return c.withLock(spaceKey(spaceID), fn)
}

// WithSlotLock runs fn while holding the lock for the slot number.
func (c *ConsistencyCoordinator) WithSlotLock(slotNumber string, fn func() error) error {
	return c.withLock(slotKey(slotNumber), fn)
}

// WithSlotLocks runs fn while holding the locks for every listed slot number.
// Keys are acquired in sorted order; used by the renumber path, which must
// keep concurrent bookings on the affected slots from interleaving with the
// rewrite.
func (c *ConsistencyCoordinator) WithSlotLocks(slotNumbers []string, fn func() error) error {
	keys := make([]string, 0, len(slotNumbers))
	seen := make(map[string]bool, len(slotNumbers))
	for _, n := range slotNumbers {
		k := slotKey(n)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	entries := make([]*keyLock, len(keys))
	for i, k := range keys {
		entries[i] = c.acquire(k)
		entries[i].mu.Lock()
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
			c.release(keys[i])
		}
	}()

	return fn()
}

func (c *ConsistencyCoordinator) withLock(key string, fn func() error) error {
	entry := c.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		c.release(key)
	}()

	return fn()
}

// acquire bumps the refcount so a lock entry is never dropped while a waiter
// is queued on it.
func (c *ConsistencyCoordinator) acquire(key string) *keyLock {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.locks[key]
	if !ok {
		entry = &keyLock{}
		c.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (c *ConsistencyCoordinator) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(c.locks, key)
	}
}

// Key namespaces keep a slot number from colliding with a space id.
func spaceKey(id SpaceID) string { return "space/" + string(id) }
func slotKey(number string) string { return "slot/" + number }
