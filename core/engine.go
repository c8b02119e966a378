/*
engine.go - The public surface of the core

PURPOSE:
  Engine glues the registry, ledger, settlement engine and coordinator
  together and is the boundary the rest of the system calls. Every operation
  acquires the relevant lock, delegates, and releases on completion or
  failure; callers never touch the sub-engines directly.

LOCK MAPPING:
  AddSlot / RemoveSlot / GetSlotsForSpace / DeleteSpace  -> space lock
  CheckAvailability / CreateReservation / Cancel / Settle -> slot lock
  RemoveSlot with renumber additionally takes the affected slot locks in
  ascending order, inside the space lock, so a concurrent booking check on a
  slot being renamed serializes with the rewrite.

SEE ALSO:
  - coordinator.go: The lock implementation
  - api/handlers.go: The HTTP caller of this surface
*/
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store      TxStore
	Registry   *SlotRegistry
	Ledger     *ReservationLedger
	Settlement *SettlementEngine
	Coord      *ConsistencyCoordinator
	Clock      func() time.Time
}

// NewEngine wires the sub-engines around one store.
func NewEngine(store TxStore) *Engine {
	ledger := NewReservationLedger(store)
	return &Engine{
		Store:      store,
		Registry:   NewSlotRegistry(store),
		Ledger:     ledger,
		Settlement: NewSettlementEngine(store, ledger),
		Coord:      NewConsistencyCoordinator(),
		Clock:      time.Now,
	}
}

// SetClock fixes the notion of "now" for the engine and its sub-engines.
// Used by tests and the time-advance worker.
func (e *Engine) SetClock(clock func() time.Time) {
	e.Clock = clock
	e.Registry.Clock = clock
	e.Ledger.Clock = clock
	e.Settlement.Clock = clock
}

// =============================================================================
// SLOT OPERATIONS (space lock)
// =============================================================================

// AddSlot appends a slot with the next unused index and returns its number.
func (e *Engine) AddSlot(ctx context.Context, spaceID SpaceID) (string, error) {
	var number string
	err := e.Coord.WithSpaceLock(spaceID, func() error {
		var err error
		number, err = e.Registry.AddSlot(ctx, spaceID)
		return err
	})
	return number, err
}

// RemoveSlot deletes a slot, renumbering the slots above it when necessary.
// Returns whether a renumber happened.
func (e *Engine) RemoveSlot(ctx context.Context, slotNumber string) (bool, error) {
	index, spaceID, err := ParseSlotNumber(slotNumber)
	if err != nil {
		return false, err
	}

	var renumbered bool
	err = e.Coord.WithSpaceLock(spaceID, func() error {
		// The slot set is stable under the space lock; collect the slots the
		// renumber would touch and hold their booking locks for the rewrite.
		slots, err := e.Store.SlotsForSpace(ctx, spaceID)
		if err != nil {
			return &PersistenceError{Op: "load slots", Err: err}
		}
		var affected []string
		for _, s := range slots {
			if s.Index >= index {
				affected = append(affected, s.Number)
			}
		}
		if len(affected) == 0 {
			affected = []string{slotNumber}
		}

		return e.Coord.WithSlotLocks(affected, func() error {
			var err error
			renumbered, err = e.Registry.RemoveSlot(ctx, slotNumber)
			return err
		})
	})
	return renumbered, err
}

// GetSlotsForSpace returns the space's slots ordered by index ascending.
func (e *Engine) GetSlotsForSpace(ctx context.Context, spaceID SpaceID) ([]ParkingSlot, error) {
	var slots []ParkingSlot
	err := e.Coord.WithSpaceLock(spaceID, func() error {
		var err error
		slots, err = e.Registry.GetSlotsForSpace(ctx, spaceID)
		return err
	})
	return slots, err
}

// =============================================================================
// RESERVATION OPERATIONS (slot lock)
// =============================================================================

// CheckAvailability reports whether the slot is free for [start, end).
func (e *Engine) CheckAvailability(ctx context.Context, slotNumber string, start, end time.Time) (bool, error) {
	var available bool
	err := e.Coord.WithSlotLock(slotNumber, func() error {
		var err error
		available, err = e.Ledger.CheckAvailability(ctx, slotNumber, start, end)
		return err
	})
	return available, err
}

// CreateReservation books the slot for [start, end); the availability check
// and the insert run as one unit under the slot lock.
func (e *Engine) CreateReservation(ctx context.Context, slotNumber string, vehicleID VehicleID, renterID AccountID, start, end time.Time) (*Reservation, error) {
	var r *Reservation
	err := e.Coord.WithSlotLock(slotNumber, func() error {
		var err error
		r, err = e.Ledger.CreateReservation(ctx, slotNumber, vehicleID, renterID, start, end)
		return err
	})
	return r, err
}

// AvailableSlots returns the slot numbers in the space that are free for the
// whole window [start, end). Read-only reporting on committed state; a booking
// racing this listing is caught by CreateReservation's own check.
func (e *Engine) AvailableSlots(ctx context.Context, spaceID SpaceID, start, end time.Time) ([]string, error) {
	slots, err := e.Registry.GetSlotsForSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	free := make([]string, 0, len(slots))
	for _, slot := range slots {
		available, err := e.Ledger.CheckAvailability(ctx, slot.Number, start, end)
		if err != nil {
			return nil, err
		}
		if available {
			free = append(free, slot.Number)
		}
	}
	return free, nil
}

// CancelReservation cancels a PENDING or PAID reservation before its start.
func (e *Engine) CancelReservation(ctx context.Context, id ReservationID) error {
	return e.withReservationLock(ctx, id, func() error {
		return e.Ledger.CancelReservation(ctx, id)
	})
}

// Settle executes the atomic payment settlement for a PENDING reservation.
func (e *Engine) Settle(ctx context.Context, id ReservationID) (*Transaction, error) {
	var tx *Transaction
	err := e.withReservationLock(ctx, id, func() error {
		var err error
		tx, err = e.Settlement.Settle(ctx, id)
		return err
	})
	return tx, err
}

// GetReservation returns a reservation by id.
func (e *Engine) GetReservation(ctx context.Context, id ReservationID) (*Reservation, error) {
	r, err := e.Store.GetReservation(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load reservation", Err: err}
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "reservation", ID: string(id)}
	}
	return r, nil
}

// AdvanceReservations moves every PAID reservation whose start has passed to
// ACTIVE, and every ACTIVE reservation whose end has passed to COMPLETED.
// Returns how many reservations changed status.
func (e *Engine) AdvanceReservations(ctx context.Context, now time.Time) (int, error) {
	due, err := e.Store.ReservationsByStatus(ctx, StatusPaid, StatusActive)
	if err != nil {
		return 0, &PersistenceError{Op: "load reservations", Err: err}
	}

	advanced := 0
	for _, r := range due {
		before := r.Status
		err := e.Coord.WithSlotLock(r.SlotNumber, func() error {
			return e.Ledger.Advance(ctx, r.ID, now)
		})
		if err != nil {
			return advanced, err
		}
		after, err := e.Store.GetReservation(ctx, r.ID)
		if err == nil && after != nil && after.Status != before {
			advanced++
		}
	}
	return advanced, nil
}

// withReservationLock resolves the reservation's slot and runs fn under that
// slot's lock. The inner operation re-loads the reservation by id, so a
// concurrent renumber renaming the slot cannot invalidate the work.
func (e *Engine) withReservationLock(ctx context.Context, id ReservationID, fn func() error) error {
	r, err := e.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	return e.Coord.WithSlotLock(r.SlotNumber, fn)
}

// =============================================================================
// SPACE MANAGEMENT
// =============================================================================

// CreateSpace registers a parking space. The id doubles as the slot-number
// suffix ("P1" -> slot "1P1"), so it must not begin with a digit.
func (e *Engine) CreateSpace(ctx context.Context, id SpaceID, address string, hourlyRate decimal.Decimal, adminID AccountID) (*ParkingSpace, error) {
	if id == "" {
		return nil, &ValidationError{Field: "space_id", Message: "space id is required"}
	}
	if id[0] >= '0' && id[0] <= '9' {
		return nil, &ValidationError{Field: "space_id", Message: "space id must not begin with a digit"}
	}
	if hourlyRate.IsNegative() {
		return nil, &ValidationError{Field: "hourly_rate", Message: "hourly rate must be non-negative"}
	}
	if adminID == "" {
		return nil, &ValidationError{Field: "admin_id", Message: "owning admin account is required"}
	}

	existing, err := e.Store.GetSpace(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load space", Err: err}
	}
	if existing != nil {
		return nil, &ConflictError{Message: "space id already in use"}
	}

	space := ParkingSpace{
		ID:         id,
		Address:    address,
		HourlyRate: hourlyRate,
		AdminID:    adminID,
		CreatedAt:  e.Clock().UTC(),
	}
	if err := e.Store.SaveSpace(ctx, space); err != nil {
		return nil, &PersistenceError{Op: "save space", Err: err}
	}
	return &space, nil
}

// GetSpace returns a space by id.
func (e *Engine) GetSpace(ctx context.Context, id SpaceID) (*ParkingSpace, error) {
	space, err := e.Store.GetSpace(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load space", Err: err}
	}
	if space == nil {
		return nil, &NotFoundError{Kind: "space", ID: string(id)}
	}
	return space, nil
}

// ListSpaces returns every registered space.
func (e *Engine) ListSpaces(ctx context.Context) ([]ParkingSpace, error) {
	spaces, err := e.Store.ListSpaces(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list spaces", Err: err}
	}
	return spaces, nil
}

// CloseSpace marks a space closed; subsequent AddSlot calls fail with a
// CapacityError. Existing slots and reservations are untouched.
func (e *Engine) CloseSpace(ctx context.Context, id SpaceID) error {
	return e.Coord.WithSpaceLock(id, func() error {
		space, err := e.GetSpace(ctx, id)
		if err != nil {
			return err
		}
		space.Closed = true
		if err := e.Store.SaveSpace(ctx, *space); err != nil {
			return &PersistenceError{Op: "save space", Err: err}
		}
		return nil
	})
}

// DeleteSpace removes a space and its slots. Allowed only when no reservation
// in the space is in a non-terminal state.
func (e *Engine) DeleteSpace(ctx context.Context, id SpaceID) error {
	return e.Coord.WithSpaceLock(id, func() error {
		space, err := e.GetSpace(ctx, id)
		if err != nil {
			return err
		}

		reservations, err := e.Store.ReservationsForSpace(ctx, id)
		if err != nil {
			return &PersistenceError{Op: "load reservations", Err: err}
		}
		for _, r := range reservations {
			if r.Status.IsLive() {
				return &ConflictError{
					SlotNumber:    r.SlotNumber,
					ReservationID: r.ID,
					Message:       "space has a live reservation",
				}
			}
		}

		slots, err := e.Store.SlotsForSpace(ctx, id)
		if err != nil {
			return &PersistenceError{Op: "load slots", Err: err}
		}

		err = e.Store.WithTx(ctx, func(s Store) error {
			for _, slot := range slots {
				if err := s.DeleteSlot(ctx, slot.Number); err != nil {
					return err
				}
			}
			return s.DeleteSpace(ctx, space.ID)
		})
		if err != nil {
			return &PersistenceError{Op: "delete space", Err: err}
		}
		return nil
	})
}

// =============================================================================
// ACCOUNTS AND REPORTING
// =============================================================================

// CreateAccount registers a balance-bearing party with an opening balance.
func (e *Engine) CreateAccount(ctx context.Context, id AccountID, name string, opening decimal.Decimal) (*Account, error) {
	if id == "" {
		return nil, &ValidationError{Field: "account_id", Message: "account id is required"}
	}
	if opening.IsNegative() {
		return nil, &ValidationError{Field: "balance", Message: "opening balance must be non-negative"}
	}

	acct := Account{
		ID:        id,
		Name:      name,
		Balance:   opening,
		CreatedAt: e.Clock().UTC(),
	}
	if err := e.Store.SaveAccount(ctx, acct); err != nil {
		return nil, &PersistenceError{Op: "save account", Err: err}
	}
	return &acct, nil
}

// ListAccounts returns every account.
func (e *Engine) ListAccounts(ctx context.Context) ([]Account, error) {
	accounts, err := e.Store.ListAccounts(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list accounts", Err: err}
	}
	return accounts, nil
}

// GetAccount returns an account by id.
func (e *Engine) GetAccount(ctx context.Context, id AccountID) (*Account, error) {
	acct, err := e.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load account", Err: err}
	}
	if acct == nil {
		return nil, &NotFoundError{Kind: "account", ID: string(id)}
	}
	return acct, nil
}

// TransactionsForAccount returns the settlements an account took part in,
// newest first. Read-only reporting on committed state.
func (e *Engine) TransactionsForAccount(ctx context.Context, id AccountID) ([]Transaction, error) {
	txs, err := e.Store.TransactionsForAccount(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load transactions", Err: err}
	}
	return txs, nil
}

// TransactionsForReservation returns the settlement history of a reservation.
func (e *Engine) TransactionsForReservation(ctx context.Context, id ReservationID) ([]Transaction, error) {
	txs, err := e.Store.TransactionsForReservation(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load transactions", Err: err}
	}
	return txs, nil
}
