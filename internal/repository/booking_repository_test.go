package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlink/tutorlink-api/internal/models"
)

func newBookingMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBookingRepositoryExtendWinsCAS(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	previousEnd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newEnd := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	extendedOn := time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET end_date").
		WithArgs("b1", newEnd, extendedOn, models.BookingStatusActive, previousEnd).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO booking_extensions").
		WithArgs(sqlmock.AnyArg(), "b1", previousEnd, newEnd, extendedOn).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	won, err := repo.Extend(context.Background(), "b1", previousEnd, newEnd, extendedOn)
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryExtendLosesCAS(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	previousEnd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newEnd := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings SET end_date").
		WithArgs("b1", newEnd, sqlmock.AnyArg(), models.BookingStatusActive, previousEnd).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	won, err := repo.Extend(context.Background(), "b1", previousEnd, newEnd, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("b1", models.BookingStatusCancelled, sqlmock.AnyArg(), models.BookingStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.Cancel(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCancelAlreadySettled(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("b1", models.BookingStatusCancelled, sqlmock.AnyArg(), models.BookingStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Cancel(context.Background(), "b1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCompleteOverdue(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1, updated_at = $2 WHERE status = $3 AND end_date < $2")).
		WithArgs(models.BookingStatusCompleted, asOf, models.BookingStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.CompleteOverdue(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryExtensionsOrdered(t *testing.T) {
	db, mock, cleanup := newBookingMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	first := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "booking_id", "previous_end_date", "new_end_date", "extended_on"}).
		AddRow("e1", "b1", first, second, first).
		AddRow("e2", "b1", second, second.AddDate(0, 1, 0), second)

	mock.ExpectQuery("SELECT id, booking_id, previous_end_date, new_end_date, extended_on").
		WithArgs("b1").
		WillReturnRows(rows)

	history, err := repo.Extensions(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, history[0].NewEndDate, history[1].PreviousEndDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
