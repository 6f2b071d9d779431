package eventlog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the closed set of event variants. Replay is an
// exhaustive match over this set; adding a kind means extending every
// aggregate's apply switch.
type Kind string

const (
	KindAccountOpened  Kind = "account.opened"
	KindFundsDeposited Kind = "funds.deposited"
	KindFundsWithdrawn Kind = "funds.withdrawn"
)

// Event is one immutable fact about an aggregate. Events are never mutated
// or deleted once appended; current state is always the fold of them.
//
// Seq is the event's position in its aggregate's stream, monotonically
// increasing from 0 with no gaps. The store enforces this on append.
type Event struct {
	AggregateID string          `json:"aggregate_id"`
	Seq         int64           `json:"seq"`
	Kind        Kind            `json:"kind"`
	Owner       string          `json:"owner,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
