// Package store provides TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openlot/parkcore/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	spaces       map[core.SpaceID]core.ParkingSpace
	slots        map[string]core.ParkingSlot
	reservations map[core.ReservationID]core.Reservation
	accounts     map[core.AccountID]core.Account
	transactions []core.Transaction

	// FailNextWrite makes the next mutating call fail with the given error.
	// Used by tests to exercise rollback paths.
	FailNextWrite error
}

func NewMemory() *Memory {
	return &Memory{
		spaces:       make(map[core.SpaceID]core.ParkingSpace),
		slots:        make(map[string]core.ParkingSlot),
		reservations: make(map[core.ReservationID]core.Reservation),
		accounts:     make(map[core.AccountID]core.Account),
	}
}

func (m *Memory) failWrite() error {
	if m.FailNextWrite != nil {
		err := m.FailNextWrite
		m.FailNextWrite = nil
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Spaces
// -----------------------------------------------------------------------------

func (m *Memory) SaveSpace(_ context.Context, space core.ParkingSpace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	m.spaces[space.ID] = space
	return nil
}

func (m *Memory) GetSpace(_ context.Context, id core.SpaceID) (*core.ParkingSpace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if space, ok := m.spaces[id]; ok {
		return &space, nil
	}
	return nil, nil
}

func (m *Memory) ListSpaces(_ context.Context) ([]core.ParkingSpace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.ParkingSpace, 0, len(m.spaces))
	for _, space := range m.spaces {
		out = append(out, space)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteSpace(_ context.Context, id core.SpaceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	delete(m.spaces, id)
	return nil
}

func (m *Memory) SetSpaceSlotCount(_ context.Context, id core.SpaceID, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	space, ok := m.spaces[id]
	if !ok {
		return nil
	}
	space.SlotCount = count
	m.spaces[id] = space
	return nil
}

// -----------------------------------------------------------------------------
// Slots
// -----------------------------------------------------------------------------

func (m *Memory) InsertSlot(_ context.Context, slot core.ParkingSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	m.slots[slot.Number] = slot
	return nil
}

func (m *Memory) GetSlot(_ context.Context, number string) (*core.ParkingSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if slot, ok := m.slots[number]; ok {
		return &slot, nil
	}
	return nil, nil
}

func (m *Memory) SlotsForSpace(_ context.Context, id core.SpaceID) ([]core.ParkingSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.ParkingSlot
	for _, slot := range m.slots {
		if slot.SpaceID == id {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *Memory) MaxSlotIndex(_ context.Context, id core.SpaceID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, slot := range m.slots {
		if slot.SpaceID == id && slot.Index > max {
			max = slot.Index
		}
	}
	return max, nil
}

func (m *Memory) UpdateSlot(_ context.Context, oldNumber string, slot core.ParkingSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	delete(m.slots, oldNumber)
	m.slots[slot.Number] = slot
	return nil
}

func (m *Memory) DeleteSlot(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	delete(m.slots, number)
	return nil
}

// -----------------------------------------------------------------------------
// Reservations
// -----------------------------------------------------------------------------

func (m *Memory) InsertReservation(_ context.Context, r core.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	m.reservations[r.ID] = r
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id core.ReservationID) (*core.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.reservations[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) ReservationsForSlot(_ context.Context, slotNumber string) ([]core.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Reservation
	for _, r := range m.reservations {
		if r.SlotNumber == slotNumber {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (m *Memory) ReservationsForSpace(_ context.Context, id core.SpaceID) ([]core.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Reservation
	for _, r := range m.reservations {
		if r.SpaceID == id {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (m *Memory) ReservationsByStatus(_ context.Context, statuses ...core.ReservationStatus) ([]core.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Reservation
	for _, r := range m.reservations {
		for _, s := range statuses {
			if r.Status == s {
				out = append(out, r)
				break
			}
		}
	}
	sortReservations(out)
	return out, nil
}

func (m *Memory) UpdateReservationStatus(_ context.Context, id core.ReservationID, status core.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil
	}
	r.Status = status
	m.reservations[id] = r
	return nil
}

func (m *Memory) ReassignReservationSlot(_ context.Context, id core.ReservationID, newSlotNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	r, ok := m.reservations[id]
	if !ok {
		return nil
	}
	r.SlotNumber = newSlotNumber
	m.reservations[id] = r
	return nil
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

func (m *Memory) SaveAccount(_ context.Context, acct core.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	m.accounts[acct.ID] = acct
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id core.AccountID) (*core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acct, ok := m.accounts[id]; ok {
		return &acct, nil
	}
	return nil, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateAccountBalance(_ context.Context, id core.AccountID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	acct, ok := m.accounts[id]
	if !ok {
		return nil
	}
	acct.Balance = balance
	m.accounts[id] = acct
	return nil
}

// -----------------------------------------------------------------------------
// Transactions (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendTransaction(_ context.Context, tx core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) TransactionsForAccount(_ context.Context, id core.AccountID) ([]core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Transaction
	for _, tx := range m.transactions {
		if tx.RenterID == id || tx.OwnerID == id {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) TransactionsForReservation(_ context.Context, id core.ReservationID) ([]core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.Transaction
	for _, tx := range m.transactions {
		if tx.ReservationID == id {
			out = append(out, tx)
		}
	}
	return out, nil
}

func sortReservations(rs []core.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Start.Equal(rs[j].Start) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Start.Before(rs[j].Start)
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + restore on error:
// fn writes directly, and a failure puts the pre-transaction state back.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		spaces:       make(map[core.SpaceID]core.ParkingSpace, len(tm.spaces)),
		slots:        make(map[string]core.ParkingSlot, len(tm.slots)),
		reservations: make(map[core.ReservationID]core.Reservation, len(tm.reservations)),
		accounts:     make(map[core.AccountID]core.Account, len(tm.accounts)),
		transactions: append([]core.Transaction{}, tm.transactions...),
	}
	for k, v := range tm.spaces {
		s.spaces[k] = v
	}
	for k, v := range tm.slots {
		s.slots[k] = v
	}
	for k, v := range tm.reservations {
		s.reservations[k] = v
	}
	for k, v := range tm.accounts {
		s.accounts[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.spaces = s.spaces
	tm.slots = s.slots
	tm.reservations = s.reservations
	tm.accounts = s.accounts
	tm.transactions = s.transactions
}

type memorySnapshot struct {
	spaces       map[core.SpaceID]core.ParkingSpace
	slots        map[string]core.ParkingSlot
	reservations map[core.ReservationID]core.Reservation
	accounts     map[core.AccountID]core.Account
	transactions []core.Transaction
}
