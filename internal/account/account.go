// Package account holds the account aggregate: a state machine whose
// authoritative state is the fold of its event history. Commands validate
// against current state and emit new events; replay applies historical
// events and can never fail on a well-formed stream.
package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally-systems/tally/internal/eventlog"
)

var (
	// ErrInvalidCommand marks a business-rule violation. It is detected
	// during command validation, before any event is produced, and is never
	// retried.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrUnknownAccount is returned by commands other than Open when the
	// aggregate has no history. It is a subtype of ErrInvalidCommand.
	ErrUnknownAccount = fmt.Errorf("%w: account does not exist", ErrInvalidCommand)

	// ErrCorruptHistory is returned when replay meets an event kind the
	// aggregate cannot apply. Commands reject anything invalid before it is
	// written, so this only happens if the log itself is damaged; it is
	// fatal for the affected aggregate, not a normal operating condition.
	ErrCorruptHistory = errors.New("corrupt event history")
)

// Account is the aggregate. An instance is rehydrated fresh for every
// command or query invocation and discarded afterwards; it holds no shared
// state across invocations.
type Account struct {
	id      string
	owner   string
	balance decimal.Decimal
	opened  bool

	// version counts events applied so far and therefore equals the
	// sequence number the next event will take.
	version int64

	// pending holds events produced by the in-flight command but not yet
	// appended to the log. Owned exclusively by that invocation.
	pending []eventlog.Event
}

// New returns an empty, not-yet-created account aggregate.
func New(id string) *Account {
	return &Account{id: id, balance: decimal.Zero}
}

// Replay folds a historical event stream into a fresh aggregate.
// Folding the same stream twice always yields identical state.
func Replay(id string, history []eventlog.Event) (*Account, error) {
	a := New(id)
	for _, e := range history {
		if !a.apply(e) {
			return nil, fmt.Errorf("%w: aggregate %q has unhandled event kind %q at seq %d",
				ErrCorruptHistory, id, e.Kind, e.Seq)
		}
		a.version++
	}
	return a, nil
}

// Open creates the account. Valid only when no prior events exist.
// A zero initial balance is accepted; a negative one is not.
func (a *Account) Open(owner string, initial decimal.Decimal, at time.Time) error {
	if a.opened {
		return fmt.Errorf("%w: account already open", ErrInvalidCommand)
	}
	if owner == "" {
		return fmt.Errorf("%w: owner name is required", ErrInvalidCommand)
	}
	if initial.IsNegative() {
		return fmt.Errorf("%w: initial balance must not be negative", ErrInvalidCommand)
	}
	a.raise(eventlog.Event{
		Kind:       eventlog.KindAccountOpened,
		Owner:      owner,
		Amount:     initial,
		OccurredAt: at,
	})
	return nil
}

// Deposit adds funds. Valid only on an open account with a positive amount.
func (a *Account) Deposit(amount decimal.Decimal, at time.Time) error {
	if !a.opened {
		return ErrUnknownAccount
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidCommand)
	}
	a.raise(eventlog.Event{
		Kind:       eventlog.KindFundsDeposited,
		Amount:     amount,
		OccurredAt: at,
	})
	return nil
}

// Withdraw removes funds. Insufficient funds rejects the whole command;
// there is no partial withdrawal.
func (a *Account) Withdraw(amount decimal.Decimal, at time.Time) error {
	if !a.opened {
		return ErrUnknownAccount
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidCommand)
	}
	if amount.GreaterThan(a.balance) {
		return fmt.Errorf("%w: insufficient funds (balance %s, requested %s)",
			ErrInvalidCommand, a.balance, amount)
	}
	a.raise(eventlog.Event{
		Kind:       eventlog.KindFundsWithdrawn,
		Amount:     amount,
		OccurredAt: at,
	})
	return nil
}

// raise stamps identity and sequence onto a candidate event, applies it, and
// buffers it for append.
func (a *Account) raise(e eventlog.Event) {
	e.AggregateID = a.id
	e.Seq = a.version
	if !a.apply(e) {
		// raise is only called with kinds apply handles; reaching this is a
		// programming error, not bad data.
		panic(fmt.Sprintf("account: raise of unhandled event kind %q", e.Kind))
	}
	a.version++
	a.pending = append(a.pending, e)
}

// apply is the pure fold step: current state + one event -> new state.
// It is total over the closed kind set and performs no validation; anything
// invalid was rejected at command time. Reports whether the kind was known.
func (a *Account) apply(e eventlog.Event) bool {
	switch e.Kind {
	case eventlog.KindAccountOpened:
		a.opened = true
		a.owner = e.Owner
		a.balance = e.Amount
	case eventlog.KindFundsDeposited:
		a.balance = a.balance.Add(e.Amount)
	case eventlog.KindFundsWithdrawn:
		a.balance = a.balance.Sub(e.Amount)
	default:
		return false
	}
	return true
}

// UncommittedEvents returns the events produced by the current command but
// not yet appended to the log.
func (a *Account) UncommittedEvents() []eventlog.Event {
	return a.pending
}

// ClearUncommitted empties the buffer after a successful append.
func (a *Account) ClearUncommitted() {
	a.pending = nil
}

func (a *Account) ID() string               { return a.id }
func (a *Account) Owner() string            { return a.owner }
func (a *Account) Balance() decimal.Decimal { return a.balance }
func (a *Account) Version() int64           { return a.version }
func (a *Account) Opened() bool             { return a.opened }
