package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/parkcore/core"
)

// =============================================================================
// END-TO-END LIFECYCLE
// =============================================================================

func TestEngine_FullRentalLifecycle(t *testing.T) {
	// Walks one space through its whole life: create, add slots, fund renter,
	// book, reject the overlap, settle, cancel-and-rebook.

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	// Owner and renter accounts: renter funded with 100, owner starts at 0.
	_, err := engine.CreateAccount(ctx, "owner-1", "Owner", decimal.Zero)
	require.NoError(t, err)
	_, err = engine.CreateAccount(ctx, "renter-1", "Renter", decimal.RequireFromString("100"))
	require.NoError(t, err)

	// A space at 10/h with three slots.
	_, err = engine.CreateSpace(ctx, "P1", "1 Main St", decimal.RequireFromString("10"), "owner-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := engine.AddSlot(ctx, "P1")
		require.NoError(t, err)
	}

	slots, err := engine.GetSlotsForSpace(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"1P1", "2P1", "3P1"}, slotNumbers(slots))

	// Book 2P1 for two hours; fee is 20.
	start := now.Add(2 * time.Hour)
	end := start.Add(2 * time.Hour)
	r, err := engine.CreateReservation(ctx, "2P1", "CAR-1", "renter-1", start, end)
	require.NoError(t, err)
	assert.True(t, r.Fee.Equal(decimal.RequireFromString("20")))

	// An overlapping booking on the same slot is rejected.
	_, err = engine.CreateReservation(ctx, "2P1", "CAR-2", "renter-1", start.Add(time.Hour), end.Add(time.Hour))
	assert.ErrorIs(t, err, core.ErrConflict)

	// The same window on another slot is fine.
	_, err = engine.CreateReservation(ctx, "3P1", "CAR-2", "renter-1", start, end)
	require.NoError(t, err)

	// Settle: renter 100 -> 80, owner 0 -> 20, status PAID.
	tx, err := engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("20")))

	renter, err := engine.GetAccount(ctx, "renter-1")
	require.NoError(t, err)
	assert.True(t, renter.Balance.Equal(decimal.RequireFromString("80")))
	owner, err := engine.GetAccount(ctx, "owner-1")
	require.NoError(t, err)
	assert.True(t, owner.Balance.Equal(decimal.RequireFromString("20")))

	paid, err := engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, paid.Status)

	// Cancel the PAID reservation before its start; the window reopens.
	require.NoError(t, engine.CancelReservation(ctx, r.ID))

	available, err := engine.CheckAvailability(ctx, "2P1", start, end)
	require.NoError(t, err)
	assert.True(t, available)

	rebooked, err := engine.CreateReservation(ctx, "2P1", "CAR-3", "renter-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, rebooked.Status)

	// The owner's settlement history shows the one transaction.
	history, err := engine.TransactionsForAccount(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, r.ID, history[0].ReservationID)
}

// =============================================================================
// SPACE MANAGEMENT
// =============================================================================

func TestEngine_CreateSpace_Validation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	rate := decimal.RequireFromString("10")

	// A space id starting with a digit would make slot numbers unparseable.
	_, err := engine.CreateSpace(ctx, "1P", "addr", rate, "owner-1")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = engine.CreateSpace(ctx, "", "addr", rate, "owner-1")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = engine.CreateSpace(ctx, "P1", "addr", decimal.RequireFromString("-1"), "owner-1")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = engine.CreateSpace(ctx, "P1", "addr", rate, "")
	assert.ErrorIs(t, err, core.ErrValidation)

	// Duplicate ids conflict.
	_, err = engine.CreateSpace(ctx, "P1", "addr", rate, "owner-1")
	require.NoError(t, err)
	_, err = engine.CreateSpace(ctx, "P1", "addr", rate, "owner-1")
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestEngine_DeleteSpace_BlockedByLiveReservation(t *testing.T) {
	// GIVEN: A space with a live reservation
	// WHEN: Deleting the space
	// THEN: The delete fails; after cancelling it succeeds and the slots go too

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	numbers := newTestSpace(t, engine, "P1", 2)
	_, err := engine.CreateAccount(ctx, "renter-1", "Renter", decimal.RequireFromString("100"))
	require.NoError(t, err)

	start := now.Add(time.Hour)
	r, err := engine.CreateReservation(ctx, numbers[0], "CAR-1", "renter-1", start, start.Add(time.Hour))
	require.NoError(t, err)

	err = engine.DeleteSpace(ctx, "P1")
	assert.ErrorIs(t, err, core.ErrConflict)

	require.NoError(t, engine.CancelReservation(ctx, r.ID))
	require.NoError(t, engine.DeleteSpace(ctx, "P1"))

	_, err = engine.GetSpace(ctx, "P1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = engine.CheckAvailability(ctx, numbers[0], start, start.Add(time.Hour))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngine_AccountValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateAccount(ctx, "", "Nameless", decimal.Zero)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = engine.CreateAccount(ctx, "a-1", "Negative", decimal.RequireFromString("-5"))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = engine.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
