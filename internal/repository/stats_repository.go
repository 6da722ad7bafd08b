package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tutorlink/tutorlink-api/internal/models"
)

// StatsRepository aggregates the admin dashboard figures.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// UserCounts returns account totals by role.
func (r *StatsRepository) UserCounts(ctx context.Context) (*models.UserCounts, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE role = 'tutor') AS tutors,
        COUNT(*) FILTER (WHERE role = 'student') AS students
        FROM users`
	var counts models.UserCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	return &counts, nil
}

// RequestCounts returns request totals by status.
func (r *StatsRepository) RequestCounts(ctx context.Context) (*models.RequestCounts, error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'pending') AS pending,
        COUNT(*) FILTER (WHERE status = 'accepted') AS accepted,
        COUNT(*) FILTER (WHERE status = 'rejected') AS rejected
        FROM tuition_requests`
	var counts models.RequestCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	return &counts, nil
}

// ActiveBookingFigures returns the active booking count and the monthly
// revenue they represent.
func (r *StatsRepository) ActiveBookingFigures(ctx context.Context) (int, float64, error) {
	const query = `SELECT COUNT(*) AS count, COALESCE(SUM(monthly_fee), 0) AS revenue FROM bookings WHERE status = 'active'`
	var figures struct {
		Count   int     `db:"count"`
		Revenue float64 `db:"revenue"`
	}
	if err := r.db.GetContext(ctx, &figures, query); err != nil {
		return 0, 0, fmt.Errorf("aggregate active bookings: %w", err)
	}
	return figures.Count, figures.Revenue, nil
}

// RecentUsers returns the latest registered accounts.
func (r *StatsRepository) RecentUsers(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC LIMIT %d`, userColumns, limit)
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list recent users: %w", err)
	}
	return users, nil
}

// RecentRequests returns the latest tuition requests with party names.
func (r *StatsRepository) RecentRequests(ctx context.Context, limit int) ([]models.TuitionRequestDetail, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT %s%s ORDER BY r.created_at DESC LIMIT %d`, requestDetailColumns, requestDetailJoins, limit)
	requests := []models.TuitionRequestDetail{}
	if err := r.db.SelectContext(ctx, &requests, query); err != nil {
		return nil, fmt.Errorf("list recent requests: %w", err)
	}
	return requests, nil
}
