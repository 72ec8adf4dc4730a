package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-element-config/pkg/audit"
)

const (
	testYear          = 2025
	testMonth         = 6
	testFilterLimit   = 10
	testFilterOffset  = 5
	testCountResult   = 42
	testRetentionDays = 30
	testRemovedCount  = 3
)

func newTestEvent() audit.Event {
	return audit.Event{
		ID:          "evt-123",
		Timestamp:   time.Date(testYear, testMonth, 15, 10, 30, 0, 0, time.UTC),
		Type:        audit.EventTypeStored,
		ElementID:   "6f1c1f3e-3b5e-4d0e-9a55-2f8f0f3c9a10",
		ElementName: "core-router-1",
		Series:      "startup-config",
		RevisionID:  "0d7f9f5e-6c0b-4a4c-8c43-3d9f0a4f6b21",
		State:       "ACTIVE",
		ContentType: "text/plain",
		Creator:     "alice",
		Created:     true,
	}
}

func eventRow(e audit.Event) []driver.Value {
	return []driver.Value{
		e.ID, e.Timestamp, string(e.Type), e.ElementID, e.ElementName,
		e.Series, e.RevisionID, e.State, e.ContentType, e.Creator,
		e.Created, e.Count,
	}
}

func TestNew(t *testing.T) {
	store := New(nil, Config{})
	assert.Equal(t, defaultRetentionDays, store.retentionDays)

	store = New(nil, Config{RetentionDays: testRetentionDays})
	assert.Equal(t, testRetentionDays, store.retentionDays)
}

func TestLog_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	event := newTestEvent()

	mock.ExpectExec("INSERT INTO config_events").
		WithArgs(
			event.ID, event.Timestamp, "stored", event.ElementID, event.ElementName,
			event.Series, event.RevisionID, event.State, event.ContentType, event.Creator,
			true, 0, "2025-06-15",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Log(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectExec("INSERT INTO config_events").WillReturnError(errors.New("insert failed"))

	err = store.Log(context.Background(), newTestEvent())
	assert.ErrorContains(t, err, "inserting config event")
}

func TestQuery_AllFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	start := time.Date(testYear, testMonth, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(testYear, testMonth, 30, 0, 0, 0, 0, time.UTC)
	event := newTestEvent()

	mock.ExpectQuery(`SELECT id, timestamp, event_type, .* FROM config_events WHERE timestamp >= \$1 AND timestamp <= \$2 AND element_id = \$3 AND series_name = \$4 AND event_type = \$5 ORDER BY timestamp DESC LIMIT 10 OFFSET 5`).
		WithArgs(start, end, event.ElementID, event.Series, "stored").
		WillReturnRows(sqlmock.NewRows(eventColumns).AddRow(eventRow(event)...))

	events, err := store.Query(context.Background(), audit.QueryFilter{
		StartTime: &start,
		EndTime:   &end,
		ElementID: event.ElementID,
		Series:    event.Series,
		Type:      audit.EventTypeStored,
		Limit:     testFilterLimit,
		Offset:    testFilterOffset,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event, events[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_NoFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery(`SELECT .* FROM config_events ORDER BY timestamp DESC$`).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	events, err := store.Query(context.Background(), audit.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestQuery_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("query failed"))

	_, err = store.Query(context.Background(), audit.QueryFilter{})
	assert.ErrorContains(t, err, "querying config events")
}

func TestQuery_ScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("only-one-column"))

	_, err = store.Query(context.Background(), audit.QueryFilter{})
	assert.ErrorContains(t, err, "scanning config event row")
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM config_events WHERE event_type = \$1`).
		WithArgs("purged").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(testCountResult))

	n, err := store.Count(context.Background(), audit.QueryFilter{Type: audit.EventTypePurged})
	require.NoError(t, err)
	assert.Equal(t, testCountResult, n)
}

func TestCleanup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{RetentionDays: testRetentionDays})
	mock.ExpectExec("DELETE FROM config_events WHERE timestamp").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, testRemovedCount))

	require.NoError(t, store.Cleanup(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.ExpectExec("DELETE FROM config_events").WillReturnError(errors.New("delete failed"))

	assert.ErrorContains(t, store.Cleanup(context.Background()), "cleaning up config events")
}

func TestStartCleanupRoutine_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db, Config{})
	mock.MatchExpectationsInOrder(false)
	for range 100 {
		mock.ExpectExec("DELETE FROM config_events").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	store.StartCleanupRoutine(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, store.Close())
}

func TestClose_WithoutRoutine(t *testing.T) {
	store := New(nil, Config{})
	assert.NoError(t, store.Close())
}
