/*
registry.go - Slot numbering and the two-phase renumber

PURPOSE:
  The SlotRegistry owns slot-number assignment for a space. It guarantees the
  contiguity invariant: within one space, the set of indices in use is exactly
  {1..N} after every add or remove.

RENUMBERING:
  Removing the highest-index slot is a plain delete. Removing any other slot
  runs in two phases:

    Phase 1 (stage):  compute, for every slot above the removed index, its new
                      index and number, and for every reservation referencing a
                      renumbered slot, its new slot-number string. Nothing is
                      written.
    Phase 2 (commit): apply the whole staged plan inside one WithTx call. The
                      removed slot row is deleted first, then the higher slots
                      shift down in ascending order so the unique (space, index)
                      constraint never trips.

  Renumbering touches an unbounded number of rows, so a partial application
  would leave a gap or a duplicate index. If any write fails the whole removal
  fails with a PersistenceError and the prior state is preserved.

  There is no force-remove path. A slot with a live reservation always fails
  with a ConflictError.

SEE ALSO:
  - coordinator.go: Serializes registry operations under the space lock
  - ledger.go: The reservation records that follow their slot through a renumber
*/
package core

import (
	"context"
	"time"
)

// =============================================================================
// SLOT REGISTRY
// =============================================================================

type SlotRegistry struct {
	Store TxStore
	Clock func() time.Time
}

func NewSlotRegistry(store TxStore) *SlotRegistry {
	return &SlotRegistry{Store: store, Clock: time.Now}
}

// AddSlot creates the slot with the next unused index for the space and
// returns its number. Fails with a CapacityError if the space is closed.
func (sr *SlotRegistry) AddSlot(ctx context.Context, spaceID SpaceID) (string, error) {
	space, err := sr.Store.GetSpace(ctx, spaceID)
	if err != nil {
		return "", &PersistenceError{Op: "load space", Err: err}
	}
	if space == nil {
		return "", &NotFoundError{Kind: "space", ID: string(spaceID)}
	}
	if space.Closed {
		return "", &CapacityError{SpaceID: spaceID}
	}

	maxIndex, err := sr.Store.MaxSlotIndex(ctx, spaceID)
	if err != nil {
		return "", &PersistenceError{Op: "load max slot index", Err: err}
	}

	slot := ParkingSlot{
		Number:    FormatSlotNumber(maxIndex+1, spaceID),
		SpaceID:   spaceID,
		Index:     maxIndex + 1,
		Available: true,
		CreatedAt: sr.Clock().UTC(),
	}

	err = sr.Store.WithTx(ctx, func(s Store) error {
		if err := s.InsertSlot(ctx, slot); err != nil {
			return err
		}
		return s.SetSpaceSlotCount(ctx, spaceID, maxIndex+1)
	})
	if err != nil {
		return "", &PersistenceError{Op: "insert slot", Err: err}
	}

	return slot.Number, nil
}

// RemoveSlot deletes a slot and, when it is not the highest index, renumbers
// every slot above it. Returns whether a renumber happened.
//
// Fails with a ConflictError if any reservation on the slot is live.
func (sr *SlotRegistry) RemoveSlot(ctx context.Context, number string) (bool, error) {
	slot, err := sr.Store.GetSlot(ctx, number)
	if err != nil {
		return false, &PersistenceError{Op: "load slot", Err: err}
	}
	if slot == nil {
		return false, &NotFoundError{Kind: "slot", ID: number}
	}

	if err := sr.checkNoLiveReservations(ctx, number); err != nil {
		return false, err
	}

	maxIndex, err := sr.Store.MaxSlotIndex(ctx, slot.SpaceID)
	if err != nil {
		return false, &PersistenceError{Op: "load max slot index", Err: err}
	}

	// Highest index: plain delete, the sequence stays contiguous.
	if slot.Index == maxIndex {
		err = sr.Store.WithTx(ctx, func(s Store) error {
			if err := s.DeleteSlot(ctx, number); err != nil {
				return err
			}
			return s.SetSpaceSlotCount(ctx, slot.SpaceID, maxIndex-1)
		})
		if err != nil {
			return false, &PersistenceError{Op: "delete slot", Err: err}
		}
		return false, nil
	}

	// Phase 1: stage the renumber plan. Reads only.
	plan, err := sr.stageRenumber(ctx, slot)
	if err != nil {
		return false, err
	}

	// Phase 2: commit the whole plan or none of it.
	err = sr.Store.WithTx(ctx, func(s Store) error {
		if err := s.DeleteSlot(ctx, number); err != nil {
			return err
		}
		for _, move := range plan.slots {
			if err := s.UpdateSlot(ctx, move.oldNumber, move.slot); err != nil {
				return err
			}
		}
		for _, move := range plan.reservations {
			if err := s.ReassignReservationSlot(ctx, move.id, move.newNumber); err != nil {
				return err
			}
		}
		return s.SetSpaceSlotCount(ctx, slot.SpaceID, maxIndex-1)
	})
	if err != nil {
		return false, &PersistenceError{Op: "commit renumber", Err: err}
	}

	return true, nil
}

// GetSlotsForSpace returns the space's slots ordered by index ascending.
func (sr *SlotRegistry) GetSlotsForSpace(ctx context.Context, spaceID SpaceID) ([]ParkingSlot, error) {
	space, err := sr.Store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, &PersistenceError{Op: "load space", Err: err}
	}
	if space == nil {
		return nil, &NotFoundError{Kind: "space", ID: string(spaceID)}
	}
	slots, err := sr.Store.SlotsForSpace(ctx, spaceID)
	if err != nil {
		return nil, &PersistenceError{Op: "load slots", Err: err}
	}
	return slots, nil
}

// =============================================================================
// RENUMBER PLAN
// =============================================================================

type slotMove struct {
	oldNumber string
	slot      ParkingSlot
}

type reservationMove struct {
	id        ReservationID
	newNumber string
}

type renumberPlan struct {
	slots        []slotMove // ascending by new index
	reservations []reservationMove
}

func (sr *SlotRegistry) stageRenumber(ctx context.Context, removed *ParkingSlot) (*renumberPlan, error) {
	slots, err := sr.Store.SlotsForSpace(ctx, removed.SpaceID)
	if err != nil {
		return nil, &PersistenceError{Op: "stage renumber: load slots", Err: err}
	}

	plan := &renumberPlan{}
	for _, s := range slots {
		if s.Index <= removed.Index {
			continue
		}
		moved := s
		moved.Index = s.Index - 1
		moved.Number = FormatSlotNumber(moved.Index, s.SpaceID)
		plan.slots = append(plan.slots, slotMove{oldNumber: s.Number, slot: moved})

		reservations, err := sr.Store.ReservationsForSlot(ctx, s.Number)
		if err != nil {
			return nil, &PersistenceError{Op: "stage renumber: load reservations", Err: err}
		}
		for _, r := range reservations {
			plan.reservations = append(plan.reservations, reservationMove{
				id:        r.ID,
				newNumber: moved.Number,
			})
		}
	}

	return plan, nil
}

func (sr *SlotRegistry) checkNoLiveReservations(ctx context.Context, number string) error {
	reservations, err := sr.Store.ReservationsForSlot(ctx, number)
	if err != nil {
		return &PersistenceError{Op: "load reservations", Err: err}
	}
	for _, r := range reservations {
		if r.Status.IsLive() {
			return &ConflictError{
				SlotNumber:    number,
				ReservationID: r.ID,
				Message:       "slot has a live reservation",
			}
		}
	}
	return nil
}
