package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorlink/tutorlink-api/internal/models"
)

// BookingRepository owns the booking ledger. Every transition out of the
// active state is a compare-and-set on status, and extensions additionally
// pin the end date they extend from, so concurrent extend/cancel races
// resolve first-writer-wins.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, request_id, student_id, tutor_id, subject, start_date, end_date, days_of_week, time_slot, monthly_fee, status, extended, created_at, updated_at`

const bookingDetailColumns = `b.id, b.request_id, b.student_id, b.tutor_id, b.subject, b.start_date, b.end_date,
        b.days_of_week, b.time_slot, b.monthly_fee, b.status, b.extended, b.created_at, b.updated_at,
        s.full_name AS student_name, s.profile_pic AS student_pic, t.full_name AS tutor_name, t.profile_pic AS tutor_pic`

const bookingDetailJoins = ` FROM bookings b
        JOIN users s ON s.id = b.student_id
        JOIN users t ON t.id = b.tutor_id`

// FindByID returns a booking by its ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindDetailByID returns a booking with party names and extension history.
func (r *BookingRepository) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	query := `SELECT ` + bookingDetailColumns + bookingDetailJoins + ` WHERE b.id = $1`
	var detail models.BookingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	history, err := r.Extensions(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.ExtensionHistory = history
	return &detail, nil
}

// Extensions returns the append-only extension history, oldest first.
func (r *BookingRepository) Extensions(ctx context.Context, bookingID string) ([]models.BookingExtension, error) {
	const query = `SELECT id, booking_id, previous_end_date, new_end_date, extended_on
        FROM booking_extensions WHERE booking_id = $1 ORDER BY extended_on ASC, id ASC`
	history := []models.BookingExtension{}
	if err := r.db.SelectContext(ctx, &history, query, bookingID); err != nil {
		return nil, fmt.Errorf("list booking extensions: %w", err)
	}
	return history, nil
}

// Extend pushes the end date forward and appends the audit entry in one
// transaction. The update pins both status and the expected previous end
// date; it reports false when either no longer holds.
func (r *BookingRepository) Extend(ctx context.Context, id string, previousEnd, newEnd time.Time, extendedOn time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin extend tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const casQuery = `UPDATE bookings SET end_date = $2, extended = TRUE, updated_at = $3
        WHERE id = $1 AND status = $4 AND end_date = $5`
	res, err := tx.ExecContext(ctx, casQuery, id, newEnd, extendedOn, models.BookingStatusActive, previousEnd)
	if err != nil {
		return false, fmt.Errorf("extend booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend booking: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	const historyQuery = `INSERT INTO booking_extensions (id, booking_id, previous_end_date, new_end_date, extended_on)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, historyQuery, uuid.NewString(), id, previousEnd, newEnd, extendedOn); err != nil {
		return false, fmt.Errorf("record booking extension: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit extend tx: %w", err)
	}
	return true, nil
}

// Cancel settles an active booking as cancelled. Reports false when the
// booking was no longer active.
func (r *BookingRepository) Cancel(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.BookingStatusCancelled, time.Now().UTC(), models.BookingStatusActive)
	if err != nil {
		return false, fmt.Errorf("cancel booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel booking: %w", err)
	}
	return affected == 1, nil
}

// CompleteOverdue marks active bookings whose end date has passed as
// completed and returns how many were settled. Used only by the sweep.
func (r *BookingRepository) CompleteOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	const query = `UPDATE bookings SET status = $1, updated_at = $2 WHERE status = $3 AND end_date < $2`
	res, err := r.db.ExecContext(ctx, query, models.BookingStatusCompleted, asOf, models.BookingStatusActive)
	if err != nil {
		return 0, fmt.Errorf("complete overdue bookings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete overdue bookings: %w", err)
	}
	return affected, nil
}

// ListForParty returns every booking where the user is the given party,
// newest first, with extension history attached.
func (r *BookingRepository) ListForParty(ctx context.Context, userID string, role models.UserRole) ([]models.BookingDetail, error) {
	column := "b.student_id"
	if role == models.RoleTutor {
		column = "b.tutor_id"
	}
	query := fmt.Sprintf(`SELECT %s%s WHERE %s = $1 ORDER BY b.created_at DESC`, bookingDetailColumns, bookingDetailJoins, column)
	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, userID); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	for i := range bookings {
		history, err := r.Extensions(ctx, bookings[i].ID)
		if err != nil {
			return nil, err
		}
		bookings[i].ExtensionHistory = history
	}
	return bookings, nil
}

// ListAll returns every booking with party names, newest first, optionally
// filtered by status. Used by the admin report export.
func (r *BookingRepository) ListAll(ctx context.Context, status models.BookingStatus) ([]models.BookingDetail, error) {
	query := `SELECT ` + bookingDetailColumns + bookingDetailJoins
	args := []interface{}{}
	if status != "" {
		query += ` WHERE b.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY b.created_at DESC`
	bookings := []models.BookingDetail{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list all bookings: %w", err)
	}
	return bookings, nil
}

// ActiveStudentsForTutor returns the students a tutor currently teaches.
func (r *BookingRepository) ActiveStudentsForTutor(ctx context.Context, tutorID string) ([]models.ActiveStudent, error) {
	const query = `SELECT b.student_id, s.full_name AS student_name, s.profile_pic AS student_pic,
        b.subject, b.id AS booking_id, b.end_date
        FROM bookings b JOIN users s ON s.id = b.student_id
        WHERE b.tutor_id = $1 AND b.status = $2 ORDER BY b.end_date ASC`
	students := []models.ActiveStudent{}
	if err := r.db.SelectContext(ctx, &students, query, tutorID, models.BookingStatusActive); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}
