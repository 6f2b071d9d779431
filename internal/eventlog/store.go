package eventlog

import (
	"context"
	"errors"
)

// ErrSequenceConflict is returned when an append's sequence numbers do not
// line up with the current end of the stream. It means a concurrent command
// on the same aggregate committed first; callers recover by re-rehydrating
// and retrying.
var ErrSequenceConflict = errors.New("event sequence conflict")

// Store is the append-only event log, keyed by aggregate id.
type Store interface {
	// Append atomically adds a non-empty batch of events to one aggregate's
	// stream. Each event's Seq must equal the current stream length plus its
	// index within the batch; any gap or overlap fails with
	// ErrSequenceConflict and nothing is written.
	Append(ctx context.Context, aggregateID string, events []Event) error

	// Load returns the full stream for an aggregate in sequence order.
	// An unknown id yields an empty slice, not an error: an aggregate with
	// no history is a valid "not yet created" state. The returned slice is
	// a snapshot; later appends never mutate it.
	Load(ctx context.Context, aggregateID string) ([]Event, error)

	// LoadAll returns every event across all aggregates, ordered by
	// aggregate id then sequence. Audit/projection use, not latency-critical.
	LoadAll(ctx context.Context) ([]Event, error)

	// AggregateIDs returns the ids of all aggregates with at least one
	// event, in lexical order.
	AggregateIDs(ctx context.Context) ([]string, error)
}
