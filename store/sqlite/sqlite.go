/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements core.Store and core.TxStore using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  spaces:        Parking spaces with hourly rate and owning admin account
  slots:         Slot rows; unique (space_id, idx) enforces the contiguous
                 numbering at the schema level
  reservations:  Booking records with status and [start, end) window
  accounts:      Renter and owner balances
  transactions:  Immutable settlement records (append-only; no UPDATE, no
                 DELETE statements exist for this table)

ATOMIC UNITS:
  WithTx wraps fn in one database transaction. Settlement's four mutations and
  a renumber's unbounded row rewrites each ride one sql.Tx; rollback on any
  error leaves the prior state untouched. Reads inside the unit go through the
  same sql.Tx so staged writes are visible to later steps.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MONEY:
  Decimal values are stored as their exact string form and re-parsed on scan,
  never as floating point.

USAGE:
  store, err := sqlite.New("./data/parkcore.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := core.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/openlot/parkcore/core"
)

// Store implements core.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is the common surface of *sql.DB and *sql.Tx, so every query helper
// works both standalone and inside an atomic unit.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Parking spaces
	CREATE TABLE IF NOT EXISTS spaces (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		admin_id TEXT NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		slot_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Slots. The unique (space_id, idx) pair backs the contiguity invariant:
	-- a renumber that would duplicate an index fails instead of committing.
	CREATE TABLE IF NOT EXISTS slots (
		number TEXT PRIMARY KEY,
		space_id TEXT NOT NULL REFERENCES spaces(id),
		idx INTEGER NOT NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		UNIQUE(space_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_slots_space
		ON slots(space_id, idx);

	-- Reservations
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		slot_number TEXT NOT NULL,
		space_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		renter_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		fee TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: the overlap check loads a slot's reservations by status
	CREATE INDEX IF NOT EXISTS idx_reservations_slot_status
		ON reservations(slot_number, status);
	CREATE INDEX IF NOT EXISTS idx_reservations_space
		ON reservations(space_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_status
		ON reservations(status);

	-- Accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only settlement records)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		renter_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_reservation
		ON transactions(reservation_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_renter
		ON transactions(renter_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_owner
		ON transactions(owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SPACES
// =============================================================================

func (s *Store) SaveSpace(ctx context.Context, space core.ParkingSpace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSpace(ctx, s.db, space)
}

func saveSpace(ctx context.Context, db dbtx, space core.ParkingSpace) error {
	query := `
		INSERT INTO spaces (id, address, hourly_rate, admin_id, closed, slot_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			hourly_rate = excluded.hourly_rate,
			admin_id = excluded.admin_id,
			closed = excluded.closed
	`
	_, err := db.ExecContext(ctx, query,
		space.ID, space.Address, space.HourlyRate.String(), space.AdminID,
		space.Closed, space.SlotCount,
		space.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSpace(ctx context.Context, id core.SpaceID) (*core.ParkingSpace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSpace(ctx, s.db, id)
}

func getSpace(ctx context.Context, db dbtx, id core.SpaceID) (*core.ParkingSpace, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, address, hourly_rate, admin_id, closed, slot_count, created_at FROM spaces WHERE id = ?",
		id,
	)
	space, err := scanSpace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return space, nil
}

func (s *Store) ListSpaces(ctx context.Context) ([]core.ParkingSpace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSpaces(ctx, s.db)
}

func listSpaces(ctx context.Context, db dbtx) ([]core.ParkingSpace, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, address, hourly_rate, admin_id, closed, slot_count, created_at FROM spaces ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spaces []core.ParkingSpace
	for rows.Next() {
		space, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, *space)
	}
	return spaces, rows.Err()
}

func (s *Store) DeleteSpace(ctx context.Context, id core.SpaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSpace(ctx, s.db, id)
}

func deleteSpace(ctx context.Context, db dbtx, id core.SpaceID) error {
	_, err := db.ExecContext(ctx, "DELETE FROM spaces WHERE id = ?", id)
	return err
}

func (s *Store) SetSpaceSlotCount(ctx context.Context, id core.SpaceID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setSpaceSlotCount(ctx, s.db, id, count)
}

func setSpaceSlotCount(ctx context.Context, db dbtx, id core.SpaceID, count int) error {
	_, err := db.ExecContext(ctx, "UPDATE spaces SET slot_count = ? WHERE id = ?", count, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(row rowScanner) (*core.ParkingSpace, error) {
	var (
		space     core.ParkingSpace
		rate      string
		createdAt string
	)
	if err := row.Scan(&space.ID, &space.Address, &rate, &space.AdminID,
		&space.Closed, &space.SlotCount, &createdAt); err != nil {
		return nil, err
	}
	space.HourlyRate = mustDecimal(rate)
	space.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &space, nil
}

// =============================================================================
// SLOTS
// =============================================================================

func (s *Store) InsertSlot(ctx context.Context, slot core.ParkingSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSlot(ctx, s.db, slot)
}

func insertSlot(ctx context.Context, db dbtx, slot core.ParkingSlot) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO slots (number, space_id, idx, available, created_at) VALUES (?, ?, ?, ?, ?)",
		slot.Number, slot.SpaceID, slot.Index, slot.Available,
		slot.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSlot(ctx context.Context, number string) (*core.ParkingSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSlot(ctx, s.db, number)
}

func getSlot(ctx context.Context, db dbtx, number string) (*core.ParkingSlot, error) {
	row := db.QueryRowContext(ctx,
		"SELECT number, space_id, idx, available, created_at FROM slots WHERE number = ?",
		number,
	)
	slot, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *Store) SlotsForSpace(ctx context.Context, id core.SpaceID) ([]core.ParkingSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slotsForSpace(ctx, s.db, id)
}

func slotsForSpace(ctx context.Context, db dbtx, id core.SpaceID) ([]core.ParkingSlot, error) {
	// idx is the authoritative sort key; number is a display string and does
	// not sort numerically.
	rows, err := db.QueryContext(ctx,
		"SELECT number, space_id, idx, available, created_at FROM slots WHERE space_id = ? ORDER BY idx ASC",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []core.ParkingSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

func (s *Store) MaxSlotIndex(ctx context.Context, id core.SpaceID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maxSlotIndex(ctx, s.db, id)
}

func maxSlotIndex(ctx context.Context, db dbtx, id core.SpaceID) (int, error) {
	var max sql.NullInt64
	err := db.QueryRowContext(ctx,
		"SELECT MAX(idx) FROM slots WHERE space_id = ?", id,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

func (s *Store) UpdateSlot(ctx context.Context, oldNumber string, slot core.ParkingSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSlot(ctx, s.db, oldNumber, slot)
}

func updateSlot(ctx context.Context, db dbtx, oldNumber string, slot core.ParkingSlot) error {
	_, err := db.ExecContext(ctx,
		"UPDATE slots SET number = ?, idx = ?, available = ? WHERE number = ?",
		slot.Number, slot.Index, slot.Available, oldNumber,
	)
	return err
}

func (s *Store) DeleteSlot(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteSlot(ctx, s.db, number)
}

func deleteSlot(ctx context.Context, db dbtx, number string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM slots WHERE number = ?", number)
	return err
}

func scanSlot(row rowScanner) (*core.ParkingSlot, error) {
	var (
		slot      core.ParkingSlot
		createdAt string
	)
	if err := row.Scan(&slot.Number, &slot.SpaceID, &slot.Index, &slot.Available, &createdAt); err != nil {
		return nil, err
	}
	slot.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &slot, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = "id, slot_number, space_id, vehicle_id, renter_id, start_at, end_at, fee, status, created_at, updated_at"

func (s *Store) InsertReservation(ctx context.Context, r core.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReservation(ctx, s.db, r)
}

func insertReservation(ctx context.Context, db dbtx, r core.Reservation) error {
	query := `
		INSERT INTO reservations
		(id, slot_number, space_id, vehicle_id, renter_id, start_at, end_at, fee, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.SlotNumber, r.SpaceID, r.VehicleID, r.RenterID,
		r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339),
		r.Fee.String(), r.Status,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetReservation(ctx context.Context, id core.ReservationID) (*core.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func getReservation(ctx context.Context, db dbtx, id core.ReservationID) (*core.Reservation, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id,
	)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ReservationsForSlot(ctx context.Context, slotNumber string) ([]core.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reservationsForSlot(ctx, s.db, slotNumber)
}

func reservationsForSlot(ctx context.Context, db dbtx, slotNumber string) ([]core.Reservation, error) {
	return queryReservations(ctx, db,
		"SELECT "+reservationColumns+" FROM reservations WHERE slot_number = ? ORDER BY start_at ASC",
		slotNumber)
}

func (s *Store) ReservationsForSpace(ctx context.Context, id core.SpaceID) ([]core.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reservationsForSpace(ctx, s.db, id)
}

func reservationsForSpace(ctx context.Context, db dbtx, id core.SpaceID) ([]core.Reservation, error) {
	return queryReservations(ctx, db,
		"SELECT "+reservationColumns+" FROM reservations WHERE space_id = ? ORDER BY start_at ASC",
		id)
}

func (s *Store) ReservationsByStatus(ctx context.Context, statuses ...core.ReservationStatus) ([]core.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reservationsByStatus(ctx, s.db, statuses...)
}

func reservationsByStatus(ctx context.Context, db dbtx, statuses ...core.ReservationStatus) ([]core.Reservation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := "SELECT " + reservationColumns + " FROM reservations WHERE status IN (?"
	args := []any{statuses[0]}
	for _, status := range statuses[1:] {
		query += ", ?"
		args = append(args, status)
	}
	query += ") ORDER BY start_at ASC"

	return queryReservations(ctx, db, query, args...)
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id core.ReservationID, status core.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReservationStatus(ctx, s.db, id, status)
}

func updateReservationStatus(ctx context.Context, db dbtx, id core.ReservationID, status core.ReservationStatus) error {
	_, err := db.ExecContext(ctx,
		"UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC().Format(time.RFC3339), id,
	)
	return err
}

func (s *Store) ReassignReservationSlot(ctx context.Context, id core.ReservationID, newSlotNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reassignReservationSlot(ctx, s.db, id, newSlotNumber)
}

func reassignReservationSlot(ctx context.Context, db dbtx, id core.ReservationID, newSlotNumber string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE reservations SET slot_number = ?, updated_at = ? WHERE id = ?",
		newSlotNumber, time.Now().UTC().Format(time.RFC3339), id,
	)
	return err
}

func queryReservations(ctx context.Context, db dbtx, query string, args ...any) ([]core.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []core.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

func scanReservation(row rowScanner) (*core.Reservation, error) {
	var (
		r              core.Reservation
		startAt, endAt string
		fee            string
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(&r.ID, &r.SlotNumber, &r.SpaceID, &r.VehicleID, &r.RenterID,
		&startAt, &endAt, &fee, &r.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Start, _ = time.Parse(time.RFC3339, startAt)
	r.End, _ = time.Parse(time.RFC3339, endAt)
	r.Fee = mustDecimal(fee)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, acct core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, acct)
}

func saveAccount(ctx context.Context, db dbtx, acct core.Account) error {
	query := `
		INSERT INTO accounts (id, name, balance, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			balance = excluded.balance
	`
	_, err := db.ExecContext(ctx, query,
		acct.ID, acct.Name, acct.Balance.String(),
		acct.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAccount(ctx context.Context, id core.AccountID) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, db dbtx, id core.AccountID) (*core.Account, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, name, balance, created_at FROM accounts WHERE id = ?", id,
	)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db)
}

func listAccounts(ctx context.Context, db dbtx) ([]core.Account, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, balance, created_at FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

func (s *Store) UpdateAccountBalance(ctx context.Context, id core.AccountID, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAccountBalance(ctx, s.db, id, balance)
}

func updateAccountBalance(ctx context.Context, db dbtx, id core.AccountID, balance decimal.Decimal) error {
	_, err := db.ExecContext(ctx,
		"UPDATE accounts SET balance = ? WHERE id = ?", balance.String(), id,
	)
	return err
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var (
		acct      core.Account
		balance   string
		createdAt string
	)
	if err := row.Scan(&acct.ID, &acct.Name, &balance, &createdAt); err != nil {
		return nil, err
	}
	acct.Balance = mustDecimal(balance)
	acct.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &acct, nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, db dbtx, tx core.Transaction) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO transactions (id, reservation_id, renter_id, owner_id, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		tx.ID, tx.ReservationID, tx.RenterID, tx.OwnerID,
		tx.Amount.String(), tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) TransactionsForAccount(ctx context.Context, id core.AccountID) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsForAccount(ctx, s.db, id)
}

func transactionsForAccount(ctx context.Context, db dbtx, id core.AccountID) ([]core.Transaction, error) {
	return queryTransactions(ctx, db,
		"SELECT id, reservation_id, renter_id, owner_id, amount, created_at FROM transactions WHERE renter_id = ? OR owner_id = ? ORDER BY created_at DESC",
		id, id)
}

func (s *Store) TransactionsForReservation(ctx context.Context, id core.ReservationID) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsForReservation(ctx, s.db, id)
}

func transactionsForReservation(ctx context.Context, db dbtx, id core.ReservationID) ([]core.Transaction, error) {
	return queryTransactions(ctx, db,
		"SELECT id, reservation_id, renter_id, owner_id, amount, created_at FROM transactions WHERE reservation_id = ? ORDER BY created_at DESC",
		id)
}

func queryTransactions(ctx context.Context, db dbtx, query string, args ...any) ([]core.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []core.Transaction
	for rows.Next() {
		var (
			tx        core.Transaction
			amount    string
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.ReservationID, &tx.RenterID, &tx.OwnerID, &amount, &createdAt); err != nil {
			return nil, err
		}
		tx.Amount = mustDecimal(amount)
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (core.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Reads made through
// the passed Store see writes staged earlier in the same unit; on error the
// whole unit rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(store core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the one sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveSpace(ctx context.Context, space core.ParkingSpace) error {
	return saveSpace(ctx, ts.tx, space)
}

func (ts *txStore) GetSpace(ctx context.Context, id core.SpaceID) (*core.ParkingSpace, error) {
	return getSpace(ctx, ts.tx, id)
}

func (ts *txStore) ListSpaces(ctx context.Context) ([]core.ParkingSpace, error) {
	return listSpaces(ctx, ts.tx)
}

func (ts *txStore) DeleteSpace(ctx context.Context, id core.SpaceID) error {
	return deleteSpace(ctx, ts.tx, id)
}

func (ts *txStore) SetSpaceSlotCount(ctx context.Context, id core.SpaceID, count int) error {
	return setSpaceSlotCount(ctx, ts.tx, id, count)
}

func (ts *txStore) InsertSlot(ctx context.Context, slot core.ParkingSlot) error {
	return insertSlot(ctx, ts.tx, slot)
}

func (ts *txStore) GetSlot(ctx context.Context, number string) (*core.ParkingSlot, error) {
	return getSlot(ctx, ts.tx, number)
}

func (ts *txStore) SlotsForSpace(ctx context.Context, id core.SpaceID) ([]core.ParkingSlot, error) {
	return slotsForSpace(ctx, ts.tx, id)
}

func (ts *txStore) MaxSlotIndex(ctx context.Context, id core.SpaceID) (int, error) {
	return maxSlotIndex(ctx, ts.tx, id)
}

func (ts *txStore) UpdateSlot(ctx context.Context, oldNumber string, slot core.ParkingSlot) error {
	return updateSlot(ctx, ts.tx, oldNumber, slot)
}

func (ts *txStore) DeleteSlot(ctx context.Context, number string) error {
	return deleteSlot(ctx, ts.tx, number)
}

func (ts *txStore) InsertReservation(ctx context.Context, r core.Reservation) error {
	return insertReservation(ctx, ts.tx, r)
}

func (ts *txStore) GetReservation(ctx context.Context, id core.ReservationID) (*core.Reservation, error) {
	return getReservation(ctx, ts.tx, id)
}

func (ts *txStore) ReservationsForSlot(ctx context.Context, slotNumber string) ([]core.Reservation, error) {
	return reservationsForSlot(ctx, ts.tx, slotNumber)
}

func (ts *txStore) ReservationsForSpace(ctx context.Context, id core.SpaceID) ([]core.Reservation, error) {
	return reservationsForSpace(ctx, ts.tx, id)
}

func (ts *txStore) ReservationsByStatus(ctx context.Context, statuses ...core.ReservationStatus) ([]core.Reservation, error) {
	return reservationsByStatus(ctx, ts.tx, statuses...)
}

func (ts *txStore) UpdateReservationStatus(ctx context.Context, id core.ReservationID, status core.ReservationStatus) error {
	return updateReservationStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) ReassignReservationSlot(ctx context.Context, id core.ReservationID, newSlotNumber string) error {
	return reassignReservationSlot(ctx, ts.tx, id, newSlotNumber)
}

func (ts *txStore) SaveAccount(ctx context.Context, acct core.Account) error {
	return saveAccount(ctx, ts.tx, acct)
}

func (ts *txStore) GetAccount(ctx context.Context, id core.AccountID) (*core.Account, error) {
	return getAccount(ctx, ts.tx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return listAccounts(ctx, ts.tx)
}

func (ts *txStore) UpdateAccountBalance(ctx context.Context, id core.AccountID, balance decimal.Decimal) error {
	return updateAccountBalance(ctx, ts.tx, id, balance)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) TransactionsForAccount(ctx context.Context, id core.AccountID) ([]core.Transaction, error) {
	return transactionsForAccount(ctx, ts.tx, id)
}

func (ts *txStore) TransactionsForReservation(ctx context.Context, id core.ReservationID) ([]core.Transaction, error) {
	return transactionsForReservation(ctx, ts.tx, id)
}

// mustDecimal parses a stored decimal string; rows are only ever written from
// decimal.Decimal values so a parse failure means a corrupted database.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
