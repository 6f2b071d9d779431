// Package ledger orchestrates the event log and the account aggregate.
// It is the only package allowed to call both: commands rehydrate an
// aggregate from the log, run one state-changing operation, and persist the
// newly produced events; queries rehydrate and read without writing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tally-systems/tally/internal/account"
	"github.com/tally-systems/tally/internal/eventlog"
)

// ErrConflict is the terminal failure after conflict retries are exhausted.
// Sustained contention on one aggregate id surfaces as this rather than an
// unbounded retry loop.
var ErrConflict = errors.New("command conflicted with concurrent updates")

const listConcurrency = 8

// Projection is the read-only derived view of one account.
type Projection struct {
	ID      string          `json:"id"`
	Owner   string          `json:"owner"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

// Service implements the command and query sides over one event store.
type Service struct {
	store            eventlog.Store
	maxAttempts      int
	maxBodySizeBytes int

	// Injected so tests can pin time and ids.
	nowFn func() time.Time
	newID func() string
}

// NewService creates the ledger service. maxAttempts bounds the
// rehydrate-mutate-append retry cycle on sequence conflicts;
// maxBodySizeKB bounds request bodies at the HTTP boundary.
func NewService(store eventlog.Store, maxAttempts, maxBodySizeKB int) *Service {
	if store == nil {
		panic("ledger: store must not be nil")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if maxBodySizeKB <= 0 {
		maxBodySizeKB = 64
	}
	return &Service{
		store:            store,
		maxAttempts:      maxAttempts,
		maxBodySizeBytes: maxBodySizeKB * 1024,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
		newID: uuid.NewString,
	}
}

// OpenAccount generates a fresh id and runs the open command.
func (s *Service) OpenAccount(ctx context.Context, owner string, initial decimal.Decimal) (Projection, error) {
	id := s.newID()
	return s.execute(ctx, id, func(a *account.Account) error {
		return a.Open(owner, initial, s.nowFn())
	})
}

// Deposit adds funds to an existing account.
func (s *Service) Deposit(ctx context.Context, id string, amount decimal.Decimal) (Projection, error) {
	return s.execute(ctx, id, func(a *account.Account) error {
		return a.Deposit(amount, s.nowFn())
	})
}

// Withdraw removes funds from an existing account.
func (s *Service) Withdraw(ctx context.Context, id string, amount decimal.Decimal) (Projection, error) {
	return s.execute(ctx, id, func(a *account.Account) error {
		return a.Withdraw(amount, s.nowFn())
	})
}

// execute runs the rehydrate -> handle -> append cycle. A sequence conflict
// means another writer committed first; the whole cycle is retried from a
// fresh load so the command revalidates against the state that actually won.
func (s *Service) execute(ctx context.Context, id string, cmd func(*account.Account) error) (Projection, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		history, err := s.store.Load(ctx, id)
		if err != nil {
			return Projection{}, fmt.Errorf("load history for %q: %w", id, err)
		}

		agg, err := account.Replay(id, history)
		if err != nil {
			return Projection{}, err
		}

		if err := cmd(agg); err != nil {
			return Projection{}, err
		}

		if err := s.store.Append(ctx, id, agg.UncommittedEvents()); err != nil {
			if errors.Is(err, eventlog.ErrSequenceConflict) {
				slog.Warn("Append conflicted, retrying command",
					"account_id", id,
					"attempt", attempt,
					"max_attempts", s.maxAttempts)
				continue
			}
			return Projection{}, fmt.Errorf("append events for %q: %w", id, err)
		}

		agg.ClearUncommitted()
		return projectionOf(agg), nil
	}

	return Projection{}, fmt.Errorf("%w: account %q, gave up after %d attempts", ErrConflict, id, s.maxAttempts)
}

// GetAccount rehydrates and returns the derived projection. An id with no
// history reports ErrUnknownAccount; queries never write.
func (s *Service) GetAccount(ctx context.Context, id string) (Projection, error) {
	history, err := s.store.Load(ctx, id)
	if err != nil {
		return Projection{}, fmt.Errorf("load history for %q: %w", id, err)
	}

	agg, err := account.Replay(id, history)
	if err != nil {
		return Projection{}, err
	}
	if !agg.Opened() {
		return Projection{}, account.ErrUnknownAccount
	}
	return projectionOf(agg), nil
}

// ListAccounts rebuilds the projection of every known aggregate. Streams are
// independent, so rehydration fans out across a bounded worker group; the
// result keeps the store's lexical id order.
func (s *Service) ListAccounts(ctx context.Context) ([]Projection, error) {
	ids, err := s.store.AggregateIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aggregate ids: %w", err)
	}

	projections := make([]Projection, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			history, err := s.store.Load(gctx, id)
			if err != nil {
				return fmt.Errorf("load history for %q: %w", id, err)
			}
			agg, err := account.Replay(id, history)
			if err != nil {
				return err
			}
			projections[i] = projectionOf(agg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return projections, nil
}

// AuditLog returns every event across all accounts, ordered by aggregate id
// then sequence.
func (s *Service) AuditLog(ctx context.Context) ([]eventlog.Event, error) {
	events, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit log: %w", err)
	}
	return events, nil
}

func projectionOf(a *account.Account) Projection {
	return Projection{
		ID:      a.ID(),
		Owner:   a.Owner(),
		Balance: a.Balance(),
		Version: a.Version(),
	}
}
