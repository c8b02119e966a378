/*
store.go - Persistence interface for spaces, slots, reservations and money

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage; the engine only
  depends on these interfaces.

KEY INTERFACES:
  Store:   Entity reads and writes against one authoritative store
  TxStore: Store plus WithTx for atomic multi-table mutations

ATOMIC UNITS:
  WithTx() ensures all-or-nothing semantics. Settlement (debit + credit +
  transaction append + status advance) and renumbering (N slot rewrites plus
  their reservations) each run inside one WithTx call. If fn returns an error
  nothing is retained.

MISSING ROWS:
  Get* methods return (nil, nil) when the row does not exist; the engine
  converts that into a NotFoundError. Store errors are reserved for real
  failures.

TRANSACTION TABLE:
  AppendTransaction is the only write on the transactions table. There is no
  update or delete; settlements are immutable history.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - core/store/memory.go:   In-memory for testing

SEE ALSO:
  - registry.go, ledger.go, settlement.go: The engine built on this interface
*/
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Entity persistence against one authoritative store
// =============================================================================

type Store interface {
	// Spaces
	SaveSpace(ctx context.Context, space ParkingSpace) error
	GetSpace(ctx context.Context, id SpaceID) (*ParkingSpace, error)
	ListSpaces(ctx context.Context) ([]ParkingSpace, error)
	DeleteSpace(ctx context.Context, id SpaceID) error
	SetSpaceSlotCount(ctx context.Context, id SpaceID, count int) error

	// Slots. SlotsForSpace is ordered by index ascending; the index is the
	// authoritative sort key, the number is a derived display string.
	InsertSlot(ctx context.Context, slot ParkingSlot) error
	GetSlot(ctx context.Context, number string) (*ParkingSlot, error)
	SlotsForSpace(ctx context.Context, id SpaceID) ([]ParkingSlot, error)
	MaxSlotIndex(ctx context.Context, id SpaceID) (int, error)
	UpdateSlot(ctx context.Context, oldNumber string, slot ParkingSlot) error
	DeleteSlot(ctx context.Context, number string) error

	// Reservations
	InsertReservation(ctx context.Context, r Reservation) error
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)
	ReservationsForSlot(ctx context.Context, slotNumber string) ([]Reservation, error)
	ReservationsForSpace(ctx context.Context, id SpaceID) ([]Reservation, error)
	ReservationsByStatus(ctx context.Context, statuses ...ReservationStatus) ([]Reservation, error)
	UpdateReservationStatus(ctx context.Context, id ReservationID, status ReservationStatus) error
	ReassignReservationSlot(ctx context.Context, id ReservationID, newSlotNumber string) error

	// Accounts
	SaveAccount(ctx context.Context, acct Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccountBalance(ctx context.Context, id AccountID, balance decimal.Decimal) error

	// Transactions (append-only; no update, no delete)
	AppendTransaction(ctx context.Context, tx Transaction) error
	TransactionsForAccount(ctx context.Context, id AccountID) ([]Transaction, error)
	TransactionsForReservation(ctx context.Context, id ReservationID) ([]Transaction, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this for settlement and renumbering, where partial application would
// corrupt balances or the index sequence.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through its Store is rolled back.
	// If fn returns nil, the writes are committed together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
