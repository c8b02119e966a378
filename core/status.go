/*
status.go - Reservation status lifecycle

PURPOSE:
  Defines the reservation state machine and the validator that guards every
  status transition. The lifecycle is:

    PENDING --settle--> PAID --begin--> ACTIVE --complete--> COMPLETED
    PENDING --cancel--> CANCELLED
    PAID    --cancel--> CANCELLED   (only before the reservation's start)

  CANCELLED and COMPLETED are terminal. The settle event belongs to the
  settlement engine; begin/complete belong to the time-advance worker;
  cancel belongs to the caller.

SEE ALSO:
  - ledger.go: Applies cancel/begin/complete transitions
  - settlement.go: Applies the settle transition inside its atomic unit
*/
package core

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"
)

// =============================================================================
// STATES AND EVENTS
// =============================================================================

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusPaid      ReservationStatus = "paid"
	StatusActive    ReservationStatus = "active"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
)

type Event string

const (
	EventSettle   Event = "settle"
	EventBegin    Event = "begin"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
)

// Transition defines a valid status change: an event moves a reservation from
// Src to Dst.
type Transition struct {
	Event Event
	Src   ReservationStatus
	Dst   ReservationStatus
}

// Transitions defines every valid status change in the reservation lifecycle.
var Transitions = []Transition{
	{Event: EventSettle, Src: StatusPending, Dst: StatusPaid},
	{Event: EventBegin, Src: StatusPaid, Dst: StatusActive},
	{Event: EventComplete, Src: StatusActive, Dst: StatusCompleted},
	{Event: EventCancel, Src: StatusPending, Dst: StatusCancelled},
	{Event: EventCancel, Src: StatusPaid, Dst: StatusCancelled},
}

// IsTerminal reports whether no further transitions exist from the status.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsLive reports whether the reservation still claims its slot's time window.
// Live reservations block overlapping bookings and slot removal.
func (s ReservationStatus) IsLive() bool {
	return s == StatusPending || s == StatusPaid || s == StatusActive
}

// =============================================================================
// TRANSITION VALIDATOR - looplab/fsm backed
// =============================================================================

// events converts Transitions into looplab/fsm EventDesc format, consolidating
// transitions with the same event+destination into one EventDesc with multiple
// source states (cancel from pending and paid both land on cancelled).
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range Transitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// applyEvent checks whether event is valid from the current status and returns
// the destination status. A short-lived FSM instance is built per call because
// looplab/fsm tracks the current state internally.
func applyEvent(ctx context.Context, id ReservationID, current ReservationStatus, event Event) (ReservationStatus, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return "", &InvalidStateError{
				ReservationID: id,
				Status:        current,
				Event:         event,
			}
		}
		return "", err
	}

	return ReservationStatus(machine.Current()), nil
}
