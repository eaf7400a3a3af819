package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clasutil/models"
	"clasutil/utils"
)

var observationColumns = []string{"id", "room_name", "status", "timestamp", "building", "floor", "class_type"}

func setupMockStore(t *testing.T, attempts int) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := utils.NewNopLogger()
	retry := &utils.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, Logger: logger}
	store, err := NewPostgresStore(db, "classroom_status", retry, logger)
	require.NoError(t, err)

	return db, mock, store
}

func TestFetchRecentObservations_Success(t *testing.T) {
	db, mock, store := setupMockStore(t, 1)
	defer db.Close()

	t2 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := t2.Add(-time.Minute)

	rows := sqlmock.NewRows(observationColumns).
		AddRow("a1", "Room A", "occupied", t2, "North Hall", "2", "Lecture").
		AddRow("b1", "Room B", "empty", t1, nil, nil, nil)

	mock.ExpectQuery(`SELECT id, room_name, status, timestamp, building, floor, class_type\s+FROM "classroom_status"\s+ORDER BY timestamp DESC`).
		WithArgs(500).
		WillReturnRows(rows)

	batch, err := store.FetchRecentObservations(context.Background(), 500)

	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "Room A", batch[0].RoomName)
	assert.Equal(t, "North Hall", batch[0].Building)
	assert.True(t, batch[0].Timestamp.Equal(t2))
	assert.Equal(t, "Room B", batch[1].RoomName)
	assert.Equal(t, "", batch[1].Building)
	assert.Equal(t, "", batch[1].ClassType)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRecentObservations_DefaultLimit(t *testing.T) {
	db, mock, store := setupMockStore(t, 1)
	defer db.Close()

	mock.ExpectQuery(`SELECT id`).
		WithArgs(DefaultFetchLimit).
		WillReturnRows(sqlmock.NewRows(observationColumns))

	batch, err := store.FetchRecentObservations(context.Background(), 0)

	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRecentObservations_NullKeysSurviveAsZeroValues(t *testing.T) {
	db, mock, store := setupMockStore(t, 1)
	defer db.Close()

	rows := sqlmock.NewRows(observationColumns).
		AddRow("x", nil, "occupied", nil, nil, nil, nil)
	mock.ExpectQuery(`SELECT id`).WithArgs(10).WillReturnRows(rows)

	batch, err := store.FetchRecentObservations(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "", batch[0].RoomName)
	assert.True(t, batch[0].Timestamp.IsZero())
}

func TestFetchRecentObservations_RetriesTransientErrors(t *testing.T) {
	db, mock, store := setupMockStore(t, 3)
	defer db.Close()

	mock.ExpectQuery(`SELECT id`).WithArgs(5).WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(`SELECT id`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows(observationColumns).
			AddRow("a1", "Room A", "empty", time.Now(), "", "", ""))

	batch, err := store.FetchRecentObservations(context.Background(), 5)

	require.NoError(t, err)
	assert.Len(t, batch, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRecentObservations_StoreUnavailable(t *testing.T) {
	db, mock, store := setupMockStore(t, 2)
	defer db.Close()

	mock.ExpectQuery(`SELECT id`).WithArgs(5).WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(`SELECT id`).WithArgs(5).WillReturnError(errors.New("connection refused"))

	batch, err := store.FetchRecentObservations(context.Background(), 5)

	require.Error(t, err)
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_WritesNullForEmptyOptionalFields(t *testing.T) {
	db, mock, store := setupMockStore(t, 1)
	defer db.Close()

	obs := &models.Observation{
		ID:        "6f1c2f7e-8d2b-4b7a-9f3e-2a1d0c9b8e7f",
		RoomName:  "Room A",
		Status:    models.StatusOccupied,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Building:  "North Hall",
	}

	mock.ExpectExec(`INSERT INTO "classroom_status"`).
		WithArgs(obs.ID, "Room A", "occupied", sqlmock.AnyArg(), "North Hall", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Insert(context.Background(), obs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Failure(t *testing.T) {
	db, mock, store := setupMockStore(t, 1)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO`).WillReturnError(errors.New("disk full"))

	err := store.Insert(context.Background(), &models.Observation{ID: "x", RoomName: "Room A", Status: "empty", Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestMigrate(t *testing.T) {
	db, mock, store := setupMockStore(t, 1)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "classroom_status"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_RejectsBadTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgresStore(db, "rooms; DROP TABLE x", nil, utils.NewNopLogger())
	assert.Error(t, err)
}
