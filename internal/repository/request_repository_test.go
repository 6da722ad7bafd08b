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

func newRequestMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("INSERT INTO tuition_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.TuitionRequest{
		StudentID:      "s1",
		TutorID:        "t1",
		Subject:        "Math",
		GradeLevel:     "10",
		PreferredDays:  []string{"monday"},
		PreferredTime:  "18:00",
		DurationMonths: 2,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MonthlyFee:     4000,
	}
	err := repo.Create(context.Background(), request)
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryRejectWinsCAS(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("r1", models.RequestStatusRejected, sqlmock.AnyArg(), models.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.Reject(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryRejectLosesCAS(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("r1", models.RequestStatusRejected, sqlmock.AnyArg(), models.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Reject(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAcceptAndBookCommits(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("r1", models.RequestStatusAccepted, sqlmock.AnyArg(), models.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	booking := &models.Booking{
		RequestID:  "r1",
		StudentID:  "s1",
		TutorID:    "t1",
		Subject:    "Math",
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []string{"monday"},
		TimeSlot:   "18:00",
		MonthlyFee: 4000,
	}
	won, err := repo.AcceptAndBook(context.Background(), "r1", booking)
	require.NoError(t, err)
	assert.True(t, won)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, models.BookingStatusActive, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAcceptAndBookLosesCAS(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("r1", models.RequestStatusAccepted, sqlmock.AnyArg(), models.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	won, err := repo.AcceptAndBook(context.Background(), "r1", &models.Booking{RequestID: "r1", DaysOfWeek: []string{"monday"}})
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAcceptRollsBackOnBookingFailure(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("r1", models.RequestStatusAccepted, sqlmock.AnyArg(), models.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.AcceptAndBook(context.Background(), "r1", &models.Booking{RequestID: "r1", DaysOfWeek: []string{"monday"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCountPendingForTutor(t *testing.T) {
	db, mock, cleanup := newRequestMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tuition_requests WHERE tutor_id = $1 AND status = $2")).
		WithArgs("t1", models.RequestStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountPendingForTutor(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
