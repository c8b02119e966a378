/*
Package core provides the parking slot lifecycle and reservation consistency engine.

PURPOSE:
  This package contains the domain types and algorithms for managing a parking
  space's slot inventory, time-bounded reservations, and monetary settlement
  between renters and space owners. The surrounding application (admin screens,
  revenue reports) is a caller of this package, never the other way around.

KEY CONCEPTS IN THIS FILE (types.go):
  - ParkingSpace: A lot with an hourly rate and an owning admin account
  - ParkingSlot: One numbered slot inside a space; indices are contiguous 1..N
  - Reservation: A half-open [start, end) booking of one slot by one vehicle
  - Transaction: An immutable record of one settlement
  - Account: A balance-bearing party (renter or owner)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing space/account/reservation IDs
  3. Derived display strings: A slot number is computed from index + space, never
     assigned independently
  4. Immutability: Transactions are created once per settlement and never touched

SEE ALSO:
  - registry.go: Slot numbering and the two-phase renumber
  - ledger.go: Reservation conflict checks and the status lifecycle
  - settlement.go: Atomic payment settlement
*/
package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SpaceID string
type AccountID string
type ReservationID string
type TransactionID string
type VehicleID string

// =============================================================================
// PARKING SPACE - A lot owned by an admin, rented by the hour
// =============================================================================

type ParkingSpace struct {
	ID         SpaceID
	Address    string
	HourlyRate decimal.Decimal
	AdminID    AccountID // owner account credited on settlement

	// Closed spaces reject AddSlot with a CapacityError.
	Closed bool

	// SlotCount is the recorded count, kept in step with the slot table.
	// The authoritative truth is the set of slot rows; this is a convenience.
	SlotCount int

	CreatedAt time.Time
}

// =============================================================================
// PARKING SLOT - One numbered slot inside a space
// =============================================================================

// ParkingSlot belongs to exactly one space. Within a space the indices in use
// are exactly {1..N} with no gaps; RemoveSlot renumbers to keep it that way.
type ParkingSlot struct {
	Number    string // derived display string, e.g. "3P1"
	SpaceID   SpaceID
	Index     int
	Available bool
	CreatedAt time.Time
}

// FormatSlotNumber derives the display string for a slot: the sequence index
// followed by the space identifier ("P1" + index 3 -> "3P1"). The number is a
// reference string, not a sort key; sort by Index.
func FormatSlotNumber(index int, spaceID SpaceID) string {
	return strconv.Itoa(index) + string(spaceID)
}

// ParseSlotNumber splits a slot number back into its index and owning space.
func ParseSlotNumber(number string) (int, SpaceID, error) {
	i := 0
	for i < len(number) && number[i] >= '0' && number[i] <= '9' {
		i++
	}
	if i == 0 || i == len(number) {
		return 0, "", &ValidationError{Field: "slot_number", Message: fmt.Sprintf("malformed slot number %q", number)}
	}
	index, err := strconv.Atoi(number[:i])
	if err != nil || index < 1 {
		return 0, "", &ValidationError{Field: "slot_number", Message: fmt.Sprintf("malformed slot number %q", number)}
	}
	return index, SpaceID(number[i:]), nil
}

// =============================================================================
// RESERVATION - A half-open [start, end) booking of one slot
// =============================================================================

type Reservation struct {
	ID         ReservationID
	SlotNumber string
	SpaceID    SpaceID
	VehicleID  VehicleID
	RenterID   AccountID

	Start time.Time
	End   time.Time // exclusive; End > Start

	// Fee is derived at creation: space hourly rate x duration in hours.
	Fee decimal.Decimal

	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Intervals that only touch at a boundary do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FeeFor computes rate x duration with minute resolution.
func FeeFor(hourlyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	minutes := int64(end.Sub(start) / time.Minute)
	hours := decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60))
	return hourlyRate.Mul(hours)
}

// =============================================================================
// TRANSACTION - Immutable record of one settlement
// =============================================================================

// Transaction is created exactly once per successful settlement and is never
// updated or deleted. Corrections would be new compensating transactions.
type Transaction struct {
	ID            TransactionID
	ReservationID ReservationID
	RenterID      AccountID
	OwnerID       AccountID
	Amount        decimal.Decimal
	CreatedAt     time.Time
}

// =============================================================================
// ACCOUNT - A balance-bearing party
// =============================================================================

// Account holds a non-negative balance. Balances are mutated only by the
// settlement engine, always together with exactly one Transaction and one
// reservation status advance.
type Account struct {
	ID        AccountID
	Name      string
	Balance   decimal.Decimal
	CreatedAt time.Time
}
