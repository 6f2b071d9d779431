package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tally-systems/tally/internal/eventlog"
)

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryLoadEvents))
	stmtLoad, err := db.Prepare(queryLoadEvents)
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryLoadAllEvents))
	stmtLoadAll, err := db.Prepare(queryLoadAllEvents)
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryAggregateIDs))
	stmtIDs, err := db.Prepare(queryAggregateIDs)
	require.NoError(t, err)

	return &Adapter{
		db:               db,
		stmtLoadEvents:   stmtLoad,
		stmtLoadAll:      stmtLoadAll,
		stmtAggregateIDs: stmtIDs,
	}, mock, db
}

func eventRowColumns() []string {
	return []string{"aggregate_id", "seq", "kind", "owner", "amount", "occurred_at"}
}

func testEvent(seq int64, kind eventlog.Kind, amount string) eventlog.Event {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	return eventlog.Event{
		AggregateID: "acc-1",
		Seq:         seq,
		Kind:        kind,
		Amount:      d,
		OccurredAt:  testTime,
	}
}

func TestAdapter_Append_Success(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryNextSeq)).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertEvent)).
		WithArgs("acc-1", int64(0), string(eventlog.KindAccountOpened), "Alice", "100", testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertEvent)).
		WithArgs("acc-1", int64(1), string(eventlog.KindFundsDeposited), "", "50", testTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	opened := testEvent(0, eventlog.KindAccountOpened, "100")
	opened.Owner = "Alice"
	err := adapter.Append(context.Background(), "acc-1", []eventlog.Event{
		opened,
		testEvent(1, eventlog.KindFundsDeposited, "50"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Append_StaleSequenceConflicts(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryNextSeq)).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(2)))
	mock.ExpectRollback()

	err := adapter.Append(context.Background(), "acc-1", []eventlog.Event{
		testEvent(1, eventlog.KindFundsDeposited, "10"),
	})
	require.ErrorIs(t, err, eventlog.ErrSequenceConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Append_UniqueViolationConflicts(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryNextSeq)).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(queryInsertEvent)).
		WithArgs("acc-1", int64(1), string(eventlog.KindFundsDeposited), "", "10", testTime).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})
	mock.ExpectRollback()

	err := adapter.Append(context.Background(), "acc-1", []eventlog.Event{
		testEvent(1, eventlog.KindFundsDeposited, "10"),
	})
	require.ErrorIs(t, err, eventlog.ErrSequenceConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Append_EmptyBatchRejected(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	err := adapter.Append(context.Background(), "acc-1", nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, eventlog.ErrSequenceConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Load(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadEvents)).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow("acc-1", int64(0), string(eventlog.KindAccountOpened), "Alice", "100", testTime).
			AddRow("acc-1", int64(1), string(eventlog.KindFundsWithdrawn), "", "20.5000", testTime))

	events, err := adapter.Load(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, eventlog.KindAccountOpened, events[0].Kind)
	require.Equal(t, "Alice", events[0].Owner)
	require.True(t, decimal.NewFromInt(100).Equal(events[0].Amount))
	require.True(t, decimal.NewFromFloat(20.5).Equal(events[1].Amount))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Load_UnknownIDIsEmpty(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadEvents)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(eventRowColumns()))

	events, err := adapter.Load(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_LoadAll(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryLoadAllEvents)).
		WillReturnRows(sqlmock.NewRows(eventRowColumns()).
			AddRow("aaa", int64(0), string(eventlog.KindAccountOpened), "Alice", "1", testTime).
			AddRow("bbb", int64(0), string(eventlog.KindAccountOpened), "Bob", "2", testTime))

	events, err := adapter.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "aaa", events[0].AggregateID)
	require.Equal(t, "bbb", events[1].AggregateID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_AggregateIDs(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryAggregateIDs)).
		WillReturnRows(sqlmock.NewRows([]string{"aggregate_id"}).
			AddRow("aaa").
			AddRow("bbb"))

	ids, err := adapter.AggregateIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"aaa", "bbb"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
