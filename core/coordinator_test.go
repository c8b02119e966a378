package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/parkcore/core"
)

// =============================================================================
// LOCK SEMANTICS
// =============================================================================

func TestCoordinator_SameKey_Serializes(t *testing.T) {
	// Two operations on the same slot key never run concurrently.

	coord := core.NewConsistencyCoordinator()

	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = coord.WithSlotLock("1P1", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "operations on one key overlapped")
}

func TestCoordinator_DistinctKeys_Interleave(t *testing.T) {
	// Operations on independent keys are not serialized against each other.

	coord := core.NewConsistencyCoordinator()

	first := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = coord.WithSlotLock("1P1", func() error {
			close(first)
			<-done
			return nil
		})
	}()

	<-first

	// While 1P1 is held, 2P1 must still be acquirable.
	finished := make(chan struct{})
	go func() {
		_ = coord.WithSlotLock("2P1", func() error { return nil })
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("independent key blocked behind an unrelated lock")
	}
	close(done)
}

func TestCoordinator_MultiLock_AcquiresAndReleases(t *testing.T) {
	// WithSlotLocks holds every listed key for the duration of fn and releases
	// all of them afterwards, duplicates included.

	coord := core.NewConsistencyCoordinator()

	err := coord.WithSlotLocks([]string{"2P1", "4P1", "3P1", "2P1"}, func() error {
		// Another goroutine contending on a held key must wait.
		acquired := make(chan struct{})
		go func() {
			_ = coord.WithSlotLock("3P1", func() error { return nil })
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Error("held key was acquirable during the multi-lock")
		case <-time.After(50 * time.Millisecond):
		}
		return nil
	})
	require.NoError(t, err)

	// After release every key is acquirable again.
	for _, n := range []string{"2P1", "3P1", "4P1"} {
		require.NoError(t, coord.WithSlotLock(n, func() error { return nil }))
	}
}

// =============================================================================
// RACE SCENARIOS THROUGH THE ENGINE
// =============================================================================

func TestEngine_ConcurrentDoubleBooking_OneWins(t *testing.T) {
	// GIVEN: One slot and two concurrent bookings of the same window
	// WHEN: Both run at once
	// THEN: Exactly one succeeds; the other fails with a ConflictError

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	numbers := newTestSpace(t, engine, "P1", 1)
	_, err := engine.CreateAccount(ctx, "renter-1", "A", decimal.RequireFromString("100"))
	require.NoError(t, err)
	_, err = engine.CreateAccount(ctx, "renter-2", "B", decimal.RequireFromString("100"))
	require.NoError(t, err)

	start := now.Add(2 * time.Hour)
	end := start.Add(time.Hour)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, renter := range []core.AccountID{"renter-1", "renter-2"} {
		wg.Add(1)
		go func(renter core.AccountID) {
			defer wg.Done()
			_, err := engine.CreateReservation(ctx, numbers[0], "CAR", renter, start, end)
			errs <- err
		}(renter)
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case core.IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
}

func TestEngine_RenumberAndBooking_NeverInterleave(t *testing.T) {
	// GIVEN: Slots 1..5 and a constant stream of bookings on 4P1
	// WHEN: Slot 2P1 is removed concurrently (renumbering 3..5 down)
	// THEN: Every booking either lands before the renumber (and is moved with
	//       its slot) or fails cleanly; the sequence stays contiguous

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	newTestSpace(t, engine, "P1", 5)
	_, err := engine.CreateAccount(ctx, "renter-1", "A", decimal.RequireFromString("1000"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			start := now.Add(time.Duration(24*i+1) * time.Hour)
			// The slot may disappear under its old number mid-stream; both
			// outcomes are legal, silent corruption is not.
			_, _ = engine.CreateReservation(ctx, "4P1", "CAR", "renter-1", start, start.Add(time.Hour))
		}
	}()

	go func() {
		defer wg.Done()
		_, err := engine.RemoveSlot(ctx, "2P1")
		assert.NoError(t, err)
	}()

	wg.Wait()

	slots, err := engine.GetSlotsForSpace(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, slots, 4)
	for i, s := range slots {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, core.FormatSlotNumber(i+1, "P1"), s.Number)
	}

	// Every reservation that exists references a slot that exists.
	for _, s := range slots {
		reservations, err := engine.Store.ReservationsForSlot(ctx, s.Number)
		require.NoError(t, err)
		for _, r := range reservations {
			assert.Equal(t, s.Number, r.SlotNumber)
		}
	}
}
