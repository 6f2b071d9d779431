package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is the in-process Store implementation.
//
// Each aggregate id owns its own stream with its own mutex, so appends to
// distinct aggregates never contend on a shared lock. The outer RWMutex
// guards only the map of streams and is held just long enough to locate or
// create a stream.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string]*stream
}

type stream struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string]*stream),
	}
}

func (s *MemoryStore) Append(ctx context.Context, aggregateID string, events []Event) error {
	if aggregateID == "" {
		return fmt.Errorf("eventlog: aggregate id must not be empty")
	}
	if len(events) == 0 {
		return fmt.Errorf("eventlog: append requires at least one event")
	}

	st := s.streamFor(aggregateID)

	st.mu.Lock()
	defer st.mu.Unlock()

	next := int64(len(st.events))
	for i, e := range events {
		if e.AggregateID != aggregateID {
			return fmt.Errorf("eventlog: event %d targets aggregate %q, not %q", i, e.AggregateID, aggregateID)
		}
		if e.Seq != next+int64(i) {
			return fmt.Errorf("%w: aggregate %q expects seq %d, batch has %d",
				ErrSequenceConflict, aggregateID, next+int64(i), e.Seq)
		}
	}

	// The whole batch becomes visible in one step under st.mu.
	st.events = append(st.events, events...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, aggregateID string) ([]Event, error) {
	s.mu.RLock()
	st, ok := s.streams[aggregateID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Copy out so later appends never mutate a slice already handed to a caller.
	out := make([]Event, len(st.events))
	copy(out, st.events)
	return out, nil
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]Event, error) {
	ids, err := s.AggregateIDs(ctx)
	if err != nil {
		return nil, err
	}

	var out []Event
	for _, id := range ids {
		events, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (s *MemoryStore) AggregateIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.streams))
	for id, st := range s.streams {
		st.mu.Lock()
		n := len(st.events)
		st.mu.Unlock()
		if n > 0 {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}

// Ping reports store health. The in-memory store is healthy whenever the
// process is.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) streamFor(aggregateID string) *stream {
	s.mu.RLock()
	st, ok := s.streams[aggregateID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.streams[aggregateID]; ok {
		return st
	}
	st = &stream{}
	s.streams[aggregateID] = st
	return st
}
