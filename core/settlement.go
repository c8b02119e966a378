/*
settlement.go - Atomic payment settlement

PURPOSE:
  The SettlementEngine executes one settlement per reservation: debit the
  renter, credit the owner, append one Transaction, and advance the
  reservation from PENDING to PAID. The four mutations commit together or not
  at all; a partial application would either create or destroy money.

MECHANISM:
  Every mutation runs inside a single TxStore.WithTx call. The balance reads
  happen inside the same unit so a concurrent settlement on another slot
  cannot slip between read and write.

FAILURE SEMANTICS:
  InsufficientFundsError and InvalidStateError are terminal for the attempt.
  PersistenceError means nothing happened; the caller may retry at its
  discretion. Settle never retries internally.

SEE ALSO:
  - ledger.go: TransitionToPaid, the status half of the atomic unit
  - store.go: The WithTx contract this engine leans on
*/
package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SETTLEMENT ENGINE
// =============================================================================

type SettlementEngine struct {
	Store  TxStore
	Ledger *ReservationLedger
	Clock  func() time.Time
}

func NewSettlementEngine(store TxStore, ledger *ReservationLedger) *SettlementEngine {
	return &SettlementEngine{Store: store, Ledger: ledger, Clock: time.Now}
}

// Settle pays for a PENDING reservation and returns the created Transaction.
//
// Algorithm, all inside one atomic unit:
//  1. load the reservation; fail InvalidStateError unless PENDING
//  2. load the renter and owner balances
//  3. fail InsufficientFundsError if the renter cannot cover the fee
//  4. debit renter, credit owner, append the Transaction, transition to PAID
//
// When the renter owns the space the fee nets to zero: the balances are left
// untouched but the Transaction and the PAID transition still happen.
func (se *SettlementEngine) Settle(ctx context.Context, id ReservationID) (*Transaction, error) {
	var created Transaction

	err := se.Store.WithTx(ctx, func(s Store) error {
		r, err := s.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return &NotFoundError{Kind: "reservation", ID: string(id)}
		}
		if r.Status != StatusPending {
			return &InvalidStateError{ReservationID: id, Status: r.Status, Event: EventSettle}
		}

		space, err := s.GetSpace(ctx, r.SpaceID)
		if err != nil {
			return err
		}
		if space == nil {
			return &NotFoundError{Kind: "space", ID: string(r.SpaceID)}
		}

		renter, err := s.GetAccount(ctx, r.RenterID)
		if err != nil {
			return err
		}
		if renter == nil {
			return &NotFoundError{Kind: "account", ID: string(r.RenterID)}
		}

		owner, err := s.GetAccount(ctx, space.AdminID)
		if err != nil {
			return err
		}
		if owner == nil {
			return &NotFoundError{Kind: "account", ID: string(space.AdminID)}
		}

		if renter.Balance.LessThan(r.Fee) {
			return &InsufficientFundsError{
				AccountID: renter.ID,
				Available: renter.Balance,
				Requested: r.Fee,
			}
		}

		// A renter settling against their own space pays themselves: debit
		// and credit cancel out, so no balance write is issued. Writing both
		// from the pre-read balances would overwrite the debit with a stale
		// credit and mint the fee.
		if renter.ID != owner.ID {
			if err := s.UpdateAccountBalance(ctx, renter.ID, renter.Balance.Sub(r.Fee)); err != nil {
				return err
			}
			if err := s.UpdateAccountBalance(ctx, owner.ID, owner.Balance.Add(r.Fee)); err != nil {
				return err
			}
		}

		created = Transaction{
			ID:            TransactionID(uuid.NewString()),
			ReservationID: id,
			RenterID:      renter.ID,
			OwnerID:       owner.ID,
			Amount:        r.Fee,
			CreatedAt:     se.Clock().UTC(),
		}
		if err := s.AppendTransaction(ctx, created); err != nil {
			return err
		}

		return se.Ledger.TransitionToPaid(ctx, s, id)
	})

	if err != nil {
		// Business rejections pass through typed; anything else is a store
		// failure wrapped as retryable.
		if IsClientError(err) || IsNotFound(err) {
			return nil, err
		}
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "settle", Err: err}
	}

	return &created, nil
}
