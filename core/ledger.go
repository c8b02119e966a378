/*
ledger.go - Reservation records and the booking-conflict check

PURPOSE:
  The ReservationLedger owns reservation records and their status lifecycle.
  Its central job is the overlap test: for a given slot, no two live
  reservations may claim intersecting [start, end) windows.

OVERLAP TEST:
  Half-open intervals. An existing reservation conflicts with [start, end) iff

      existing.Start < end AND existing.End > start

  Adjacent windows that only touch at the boundary do not conflict. Only live
  reservations (pending, paid, active) count; cancelled and completed ones
  release their window.

CHECK-THEN-INSERT:
  CreateReservation re-runs the availability check immediately before the
  insert. The coordinator serializes both under the slot lock, so two callers
  can never both observe "available" and both insert.

OWNERSHIP:
  The ledger owns every status transition except pending -> paid, which the
  settlement engine applies jointly with the balance mutations; see
  TransitionToPaid.

SEE ALSO:
  - status.go: The transition table this ledger enforces
  - settlement.go: The one transition applied outside this file's writes
  - coordinator.go: The slot-level lock the checks run under
*/
package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RESERVATION LEDGER
// =============================================================================

type ReservationLedger struct {
	Store TxStore
	Clock func() time.Time
}

func NewReservationLedger(store TxStore) *ReservationLedger {
	return &ReservationLedger{Store: store, Clock: time.Now}
}

// CheckAvailability reports whether the slot is free for the whole window
// [start, end). The window must be well-formed and the slot must exist.
func (rl *ReservationLedger) CheckAvailability(ctx context.Context, slotNumber string, start, end time.Time) (bool, error) {
	if err := validateWindow(start, end); err != nil {
		return false, err
	}
	if _, err := rl.loadSlot(ctx, slotNumber); err != nil {
		return false, err
	}
	conflict, err := rl.findConflict(ctx, slotNumber, start, end)
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

// CreateReservation books the slot for [start, end) and returns the new
// reservation in PENDING status with its fee computed from the space's hourly
// rate. Fails with a ConflictError naming the existing reservation if the
// window is taken.
//
// Must run under the slot lock so the check and the insert are one unit.
func (rl *ReservationLedger) CreateReservation(ctx context.Context, slotNumber string, vehicleID VehicleID, renterID AccountID, start, end time.Time) (*Reservation, error) {
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	slot, err := rl.loadSlot(ctx, slotNumber)
	if err != nil {
		return nil, err
	}

	space, err := rl.Store.GetSpace(ctx, slot.SpaceID)
	if err != nil {
		return nil, &PersistenceError{Op: "load space", Err: err}
	}
	if space == nil {
		return nil, &NotFoundError{Kind: "space", ID: string(slot.SpaceID)}
	}

	conflict, err := rl.findConflict(ctx, slotNumber, start, end)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, &ConflictError{
			SlotNumber:    slotNumber,
			ReservationID: conflict.ID,
			Message:       "window overlaps an existing reservation",
		}
	}

	now := rl.Clock().UTC()
	r := Reservation{
		ID:         ReservationID(uuid.NewString()),
		SlotNumber: slotNumber,
		SpaceID:    slot.SpaceID,
		VehicleID:  vehicleID,
		RenterID:   renterID,
		Start:      start,
		End:        end,
		Fee:        FeeFor(space.HourlyRate, start, end),
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := rl.Store.InsertReservation(ctx, r); err != nil {
		return nil, &PersistenceError{Op: "insert reservation", Err: err}
	}
	return &r, nil
}

// CancelReservation moves a PENDING or PAID reservation to CANCELLED. Only
// allowed strictly before the reservation's start instant.
func (rl *ReservationLedger) CancelReservation(ctx context.Context, id ReservationID) error {
	r, err := rl.loadReservation(ctx, id)
	if err != nil {
		return err
	}

	if !rl.Clock().Before(r.Start) {
		return &InvalidStateError{ReservationID: id, Status: r.Status, Event: EventCancel}
	}

	next, err := applyEvent(ctx, id, r.Status, EventCancel)
	if err != nil {
		return err
	}

	if err := rl.Store.UpdateReservationStatus(ctx, id, next); err != nil {
		return &PersistenceError{Op: "cancel reservation", Err: err}
	}
	return nil
}

// TransitionToPaid applies the settle event against the given store view.
// Invoked only by the settlement engine, inside its atomic unit, so the status
// advance commits together with the balance mutations or not at all.
func (rl *ReservationLedger) TransitionToPaid(ctx context.Context, s Store, id ReservationID) error {
	r, err := s.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return &NotFoundError{Kind: "reservation", ID: string(id)}
	}

	next, err := applyEvent(ctx, id, r.Status, EventSettle)
	if err != nil {
		return err
	}
	return s.UpdateReservationStatus(ctx, id, next)
}

// Advance moves a reservation along the timed part of its lifecycle:
// PAID -> ACTIVE once now reaches the start, ACTIVE -> COMPLETED once now
// reaches the end. Reservations outside those states are left alone.
func (rl *ReservationLedger) Advance(ctx context.Context, id ReservationID, now time.Time) error {
	r, err := rl.loadReservation(ctx, id)
	if err != nil {
		return err
	}

	var event Event
	switch {
	case r.Status == StatusPaid && !now.Before(r.Start):
		event = EventBegin
	case r.Status == StatusActive && !now.Before(r.End):
		event = EventComplete
	default:
		return nil
	}

	next, err := applyEvent(ctx, id, r.Status, event)
	if err != nil {
		return err
	}
	if err := rl.Store.UpdateReservationStatus(ctx, id, next); err != nil {
		return &PersistenceError{Op: "advance reservation", Err: err}
	}
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// findConflict returns the first live reservation on the slot whose window
// intersects [start, end), or nil when the slot is free.
func (rl *ReservationLedger) findConflict(ctx context.Context, slotNumber string, start, end time.Time) (*Reservation, error) {
	reservations, err := rl.Store.ReservationsForSlot(ctx, slotNumber)
	if err != nil {
		return nil, &PersistenceError{Op: "load reservations", Err: err}
	}
	for i := range reservations {
		r := &reservations[i]
		if !r.Status.IsLive() {
			continue
		}
		if Overlaps(r.Start, r.End, start, end) {
			return r, nil
		}
	}
	return nil, nil
}

func (rl *ReservationLedger) loadSlot(ctx context.Context, number string) (*ParkingSlot, error) {
	slot, err := rl.Store.GetSlot(ctx, number)
	if err != nil {
		return nil, &PersistenceError{Op: "load slot", Err: err}
	}
	if slot == nil {
		return nil, &NotFoundError{Kind: "slot", ID: number}
	}
	return slot, nil
}

func (rl *ReservationLedger) loadReservation(ctx context.Context, id ReservationID) (*Reservation, error) {
	r, err := rl.Store.GetReservation(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "load reservation", Err: err}
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "reservation", ID: string(id)}
	}
	return r, nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return &ValidationError{Field: "window", Message: "start and end are required"}
	}
	if !end.After(start) {
		return &ValidationError{Field: "window", Message: "end must be after start"}
	}
	return nil
}
