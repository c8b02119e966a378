package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/parkcore/core"
	memstore "github.com/openlot/parkcore/core/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*core.Engine, *memstore.TxMemory) {
	t.Helper()
	st := memstore.NewTxMemory()
	engine := core.NewEngine(st)
	return engine, st
}

// newTestSpace registers a space with the given number of slots and returns
// the slot numbers in index order.
func newTestSpace(t *testing.T, engine *core.Engine, id core.SpaceID, slots int) []string {
	t.Helper()
	ctx := context.Background()

	_, err := engine.CreateAccount(ctx, "owner-"+core.AccountID(id), "Owner", decimal.Zero)
	require.NoError(t, err)

	_, err = engine.CreateSpace(ctx, id, "1 Test St", decimal.RequireFromString("10"), "owner-"+core.AccountID(id))
	require.NoError(t, err)

	numbers := make([]string, 0, slots)
	for i := 0; i < slots; i++ {
		number, err := engine.AddSlot(ctx, id)
		require.NoError(t, err)
		numbers = append(numbers, number)
	}
	return numbers
}

func slotNumbers(slots []core.ParkingSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Number
	}
	return out
}

// =============================================================================
// SLOT NUMBERING
// =============================================================================

func TestRegistry_AddSlot_SequentialNumbers(t *testing.T) {
	// GIVEN: An empty space
	// WHEN: Adding three slots
	// THEN: They are numbered 1P1, 2P1, 3P1 in order

	engine, _ := newTestEngine(t)
	numbers := newTestSpace(t, engine, "P1", 3)

	assert.Equal(t, []string{"1P1", "2P1", "3P1"}, numbers)

	space, err := engine.GetSpace(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, space.SlotCount)
}

func TestRegistry_AddSlot_ClosedSpace(t *testing.T) {
	// GIVEN: A closed space
	// WHEN: Adding a slot
	// THEN: The add fails with a CapacityError

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	newTestSpace(t, engine, "P1", 1)

	require.NoError(t, engine.CloseSpace(ctx, "P1"))

	_, err := engine.AddSlot(ctx, "P1")
	assert.ErrorIs(t, err, core.ErrCapacity)

	var capErr *core.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, core.SpaceID("P1"), capErr.SpaceID)
}

func TestRegistry_RemoveHighestSlot_NoRenumber(t *testing.T) {
	// GIVEN: A space with slots 1..3
	// WHEN: Removing the highest slot 3P1
	// THEN: Slots 1P1 and 2P1 are untouched and no renumber happened

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	newTestSpace(t, engine, "P1", 3)

	renumbered, err := engine.RemoveSlot(ctx, "3P1")
	require.NoError(t, err)
	assert.False(t, renumbered)

	slots, err := engine.GetSlotsForSpace(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1P1", "2P1"}, slotNumbers(slots))
}

func TestRegistry_RemoveMiddleSlot_RenumbersAbove(t *testing.T) {
	// GIVEN: A space with slots 1..5
	// WHEN: Removing slot 2P1
	// THEN: Former slots 3,4,5 become 2,3,4 and the sequence is contiguous

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	newTestSpace(t, engine, "P1", 5)

	renumbered, err := engine.RemoveSlot(ctx, "2P1")
	require.NoError(t, err)
	assert.True(t, renumbered)

	slots, err := engine.GetSlotsForSpace(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1P1", "2P1", "3P1", "4P1"}, slotNumbers(slots))
	for i, s := range slots {
		assert.Equal(t, i+1, s.Index)
	}

	space, err := engine.GetSpace(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 4, space.SlotCount)
}

func TestRegistry_Renumber_MovesReservations(t *testing.T) {
	// GIVEN: Slots 1..5 with reservations on former slots 2P1 and 4P1
	// WHEN: Removing slot 2P1 (after its reservation is cancelled)
	// THEN: The reservation that lived on 4P1 now references 3P1, and the one
	//       on the removed slot keeps its old number as history

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	newTestSpace(t, engine, "P1", 5)

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	_, err := engine.CreateAccount(ctx, "renter-1", "Renter", decimal.RequireFromString("100"))
	require.NoError(t, err)

	start := now.Add(2 * time.Hour)
	onRemoved, err := engine.CreateReservation(ctx, "2P1", "CAR-1", "renter-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	onShifted, err := engine.CreateReservation(ctx, "4P1", "CAR-2", "renter-1", start, start.Add(time.Hour))
	require.NoError(t, err)

	// A live reservation blocks the removal outright.
	_, err = engine.RemoveSlot(ctx, "2P1")
	assert.ErrorIs(t, err, core.ErrConflict)

	require.NoError(t, engine.CancelReservation(ctx, onRemoved.ID))

	renumbered, err := engine.RemoveSlot(ctx, "2P1")
	require.NoError(t, err)
	assert.True(t, renumbered)

	moved, err := engine.GetReservation(ctx, onShifted.ID)
	require.NoError(t, err)
	assert.Equal(t, "3P1", moved.SlotNumber)

	// The cancelled reservation on the removed slot is historical; it keeps
	// the number it was booked under.
	historical, err := engine.GetReservation(ctx, onRemoved.ID)
	require.NoError(t, err)
	assert.Equal(t, "2P1", historical.SlotNumber)
	assert.Equal(t, core.StatusCancelled, historical.Status)
}

func TestRegistry_Renumber_RollsBackOnWriteFailure(t *testing.T) {
	// GIVEN: Slots 1..4
	// WHEN: A write fails mid-renumber
	// THEN: The whole removal fails and the original sequence is intact

	engine, st := newTestEngine(t)
	ctx := context.Background()
	newTestSpace(t, engine, "P1", 4)

	st.FailNextWrite = errors.New("disk full")

	_, err := engine.RemoveSlot(ctx, "2P1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.True(t, core.IsRetryable(err))

	slots, err := engine.GetSlotsForSpace(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1P1", "2P1", "3P1", "4P1"}, slotNumbers(slots))
}

func TestRegistry_RemoveUnknownSlot(t *testing.T) {
	engine, _ := newTestEngine(t)
	newTestSpace(t, engine, "P1", 1)

	_, err := engine.RemoveSlot(context.Background(), "9P1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
