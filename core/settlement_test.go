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

// newSettlementFixture builds a one-slot space with a funded renter and a
// PENDING 2 hour reservation (fee 20 at the 10/h rate).
func newSettlementFixture(t *testing.T) (*core.Engine, *memstore.TxMemory, *core.Reservation) {
	t.Helper()
	engine, st := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	numbers := newTestSpace(t, engine, "P1", 1)

	_, err := engine.CreateAccount(ctx, "renter-1", "Renter", decimal.RequireFromString("100"))
	require.NoError(t, err)

	start := now.Add(2 * time.Hour)
	r, err := engine.CreateReservation(ctx, numbers[0], "CAR-1", "renter-1", start, start.Add(2*time.Hour))
	require.NoError(t, err)

	return engine, st, r
}

func balanceOf(t *testing.T, engine *core.Engine, id core.AccountID) decimal.Decimal {
	t.Helper()
	acct, err := engine.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestSettlement_MovesFeeAndRecordsTransaction(t *testing.T) {
	// GIVEN: Renter at 100, owner at 0, a PENDING reservation with fee 20
	// WHEN: Settling
	// THEN: Renter 80, owner 20, exactly one transaction, status PAID

	engine, _, r := newSettlementFixture(t)
	ctx := context.Background()

	tx, err := engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("20")), "amount %s", tx.Amount)
	assert.Equal(t, r.ID, tx.ReservationID)
	assert.Equal(t, core.AccountID("renter-1"), tx.RenterID)
	assert.Equal(t, core.AccountID("owner-P1"), tx.OwnerID)

	assert.True(t, balanceOf(t, engine, "renter-1").Equal(decimal.RequireFromString("80")))
	assert.True(t, balanceOf(t, engine, "owner-P1").Equal(decimal.RequireFromString("20")))

	got, err := engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)

	history, err := engine.TransactionsForReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSettlement_ConservesMoney(t *testing.T) {
	// The sum of renter and owner balances is unchanged by settlement.

	engine, _, r := newSettlementFixture(t)

	before := balanceOf(t, engine, "renter-1").Add(balanceOf(t, engine, "owner-P1"))

	_, err := engine.Settle(context.Background(), r.ID)
	require.NoError(t, err)

	after := balanceOf(t, engine, "renter-1").Add(balanceOf(t, engine, "owner-P1"))
	assert.True(t, before.Equal(after), "before %s, after %s", before, after)
}

func TestSettlement_InsufficientFunds_NoPartialState(t *testing.T) {
	// GIVEN: A renter whose balance cannot cover the fee
	// WHEN: Settling
	// THEN: InsufficientFundsError with the shortfall; balances, status and
	//       the transaction log are untouched

	engine, _, _ := newSettlementFixture(t)
	ctx := context.Background()

	_, err := engine.CreateAccount(ctx, "renter-2", "Broke", decimal.RequireFromString("5"))
	require.NoError(t, err)

	now := engine.Clock()
	start := now.Add(4 * time.Hour)
	r, err := engine.CreateReservation(ctx, "1P1", "CAR-2", "renter-2", start, start.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = engine.Settle(ctx, r.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.False(t, core.IsRetryable(err))

	var funds *core.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.True(t, funds.Shortfall().Equal(decimal.RequireFromString("15")), "shortfall %s", funds.Shortfall())

	assert.True(t, balanceOf(t, engine, "renter-2").Equal(decimal.RequireFromString("5")))
	assert.True(t, balanceOf(t, engine, "owner-P1").Equal(decimal.Zero))

	got, err := engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)

	history, err := engine.TransactionsForReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSettlement_WriteFailure_RollsBackEverything(t *testing.T) {
	// GIVEN: A store that fails partway through the settlement writes
	// WHEN: Settling
	// THEN: A retryable PersistenceError; the debit already applied is rolled
	//       back together with everything else

	engine, st, r := newSettlementFixture(t)
	ctx := context.Background()

	// First write inside the settlement unit is the renter debit.
	st.FailNextWrite = errors.New("io error")

	_, err := engine.Settle(ctx, r.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.True(t, core.IsRetryable(err))

	assert.True(t, balanceOf(t, engine, "renter-1").Equal(decimal.RequireFromString("100")))
	assert.True(t, balanceOf(t, engine, "owner-P1").Equal(decimal.Zero))

	got, err := engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)

	history, err := engine.TransactionsForReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The failure left no partial state, so the retry succeeds cleanly.
	_, err = engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, engine, "renter-1").Equal(decimal.RequireFromString("80")))
}

func TestSettlement_NonPendingStatus_Rejected(t *testing.T) {
	// Settling twice must not double-charge.

	engine, _, r := newSettlementFixture(t)
	ctx := context.Background()

	_, err := engine.Settle(ctx, r.ID)
	require.NoError(t, err)

	_, err = engine.Settle(ctx, r.ID)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	assert.True(t, balanceOf(t, engine, "renter-1").Equal(decimal.RequireFromString("80")))

	history, err := engine.TransactionsForReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSettlement_SelfOwnedSpace_NetsToZero(t *testing.T) {
	// GIVEN: The space owner books a slot in their own space (fee 20)
	// WHEN: Settling
	// THEN: The balance is unchanged, money is conserved, and the Transaction
	//       and PAID transition are still recorded

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	_, err := engine.CreateAccount(ctx, "owner-1", "Owner", decimal.RequireFromString("100"))
	require.NoError(t, err)
	_, err = engine.CreateSpace(ctx, "P1", "1 Test St", decimal.RequireFromString("10"), "owner-1")
	require.NoError(t, err)
	number, err := engine.AddSlot(ctx, "P1")
	require.NoError(t, err)

	start := now.Add(2 * time.Hour)
	r, err := engine.CreateReservation(ctx, number, "CAR-OWN", "owner-1", start, start.Add(2*time.Hour))
	require.NoError(t, err)

	tx, err := engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, core.AccountID("owner-1"), tx.RenterID)
	assert.Equal(t, core.AccountID("owner-1"), tx.OwnerID)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("20")), "amount %s", tx.Amount)

	assert.True(t, balanceOf(t, engine, "owner-1").Equal(decimal.RequireFromString("100")),
		"balance %s after self-settlement", balanceOf(t, engine, "owner-1"))

	got, err := engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)

	history, err := engine.TransactionsForReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSettlement_ExactBalance_Succeeds(t *testing.T) {
	// A balance exactly equal to the fee settles to zero.

	engine, _, _ := newSettlementFixture(t)
	ctx := context.Background()

	_, err := engine.CreateAccount(ctx, "renter-3", "Exact", decimal.RequireFromString("20"))
	require.NoError(t, err)

	now := engine.Clock()
	start := now.Add(6 * time.Hour)
	r, err := engine.CreateReservation(ctx, "1P1", "CAR-3", "renter-3", start, start.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = engine.Settle(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, balanceOf(t, engine, "renter-3").Equal(decimal.Zero))
}
