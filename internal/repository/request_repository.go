package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorlink/tutorlink-api/internal/models"
)

// RequestRepository owns the tuition request ledger. Status transitions go
// through compare-and-set updates so a settled request can never be
// settled again, regardless of interleaving.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestDetailColumns = `r.id, r.student_id, r.tutor_id, r.subject, r.grade_level, r.preferred_days,
        r.preferred_time, r.duration_months, r.start_date, r.monthly_fee, r.notes, r.status, r.created_at, r.updated_at,
        s.full_name AS student_name, s.profile_pic AS student_pic, t.full_name AS tutor_name, t.profile_pic AS tutor_pic`

const requestDetailJoins = ` FROM tuition_requests r
        JOIN users s ON s.id = r.student_id
        JOIN users t ON t.id = r.tutor_id`

// Create persists a new pending request.
func (r *RequestRepository) Create(ctx context.Context, request *models.TuitionRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	const query = `INSERT INTO tuition_requests (id, student_id, tutor_id, subject, grade_level, preferred_days, preferred_time, duration_months, start_date, monthly_fee, notes, status, created_at, updated_at)
        VALUES (:id, :student_id, :tutor_id, :subject, :grade_level, :preferred_days, :preferred_time, :duration_months, :start_date, :monthly_fee, :notes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create tuition request: %w", err)
	}
	return nil
}

// FindByID returns a request by its ID.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.TuitionRequest, error) {
	const query = `SELECT id, student_id, tutor_id, subject, grade_level, preferred_days, preferred_time, duration_months, start_date, monthly_fee, notes, status, created_at, updated_at
        FROM tuition_requests WHERE id = $1`
	var request models.TuitionRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID returns a request with both party names.
func (r *RequestRepository) FindDetailByID(ctx context.Context, id string) (*models.TuitionRequestDetail, error) {
	query := `SELECT ` + requestDetailColumns + requestDetailJoins + ` WHERE r.id = $1`
	var detail models.TuitionRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns requests matching the filter, newest first, with a total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.TuitionRequestDetail, int, error) {
	base := requestDetailJoins + ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("r.tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY r.created_at DESC LIMIT %d OFFSET %d`, requestDetailColumns, base+clause, size, offset)
	var requests []models.TuitionRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tuition requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*)%s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tuition requests: %w", err)
	}
	return requests, total, nil
}

// Reject settles a pending request as rejected. The WHERE clause is the
// compare-and-set: it reports false when the request was no longer pending.
func (r *RequestRepository) Reject(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.RequestStatusRejected, time.Now().UTC(), models.RequestStatusPending)
	if err != nil {
		return false, fmt.Errorf("reject tuition request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject tuition request: %w", err)
	}
	return affected == 1, nil
}

// AcceptAndBook settles a pending request as accepted and materializes its
// booking inside one transaction. If the compare-and-set loses (the request
// was already settled) it reports false and nothing is written; if the
// booking insert fails the status change rolls back with it.
func (r *RequestRepository) AcceptAndBook(ctx context.Context, id string, booking *models.Booking) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const casQuery = `UPDATE tuition_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, casQuery, id, models.RequestStatusAccepted, time.Now().UTC(), models.RequestStatusPending)
	if err != nil {
		return false, fmt.Errorf("accept tuition request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept tuition request: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.BookingStatusActive
	}
	const bookingQuery = `INSERT INTO bookings (id, request_id, student_id, tutor_id, subject, start_date, end_date, days_of_week, time_slot, monthly_fee, status, extended, created_at, updated_at)
        VALUES (:id, :request_id, :student_id, :tutor_id, :subject, :start_date, :end_date, :days_of_week, :time_slot, :monthly_fee, :status, :extended, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, bookingQuery, booking); err != nil {
		return false, fmt.Errorf("create booking for accepted request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit accept tx: %w", err)
	}
	return true, nil
}

// GroupedByStudent returns a student's requests partitioned by status,
// newest first within each group.
func (r *RequestRepository) GroupedByStudent(ctx context.Context, studentID string) (*models.RequestGroups, error) {
	query := `SELECT ` + requestDetailColumns + requestDetailJoins + ` WHERE r.student_id = $1 ORDER BY r.created_at DESC`
	var requests []models.TuitionRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, studentID); err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}

	groups := &models.RequestGroups{
		Pending:  []models.TuitionRequestDetail{},
		Accepted: []models.TuitionRequestDetail{},
		Rejected: []models.TuitionRequestDetail{},
		Total:    len(requests),
	}
	for _, req := range requests {
		switch req.Status {
		case models.RequestStatusPending:
			groups.Pending = append(groups.Pending, req)
		case models.RequestStatusAccepted:
			groups.Accepted = append(groups.Accepted, req)
		case models.RequestStatusRejected:
			groups.Rejected = append(groups.Rejected, req)
		}
	}
	return groups, nil
}

// CountPendingForTutor returns how many requests await a tutor's decision.
func (r *RequestRepository) CountPendingForTutor(ctx context.Context, tutorID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tuition_requests WHERE tutor_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, tutorID, models.RequestStatusPending); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return count, nil
}
