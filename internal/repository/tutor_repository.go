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

// TutorRepository handles persistence of tutor profiles and the public
// directory listing.
type TutorRepository struct {
	db *sqlx.DB
}

// NewTutorRepository constructs the repository.
func NewTutorRepository(db *sqlx.DB) *TutorRepository {
	return &TutorRepository{db: db}
}

func (r *TutorRepository) selectColumns() string {
	return `u.id, u.full_name, u.email, u.phone, u.city, u.area, u.profile_pic,
        p.id AS profile_id, p.user_id, p.subjects, p.experience_years, p.availability, p.monthly_rate,
        p.education, p.about, p.rating, p.num_reviews, p.profile_complete, p.created_at, p.updated_at`
}

// List returns directory tutors matching the filter with a total count.
// Only unblocked tutors with complete profiles are listed.
func (r *TutorRepository) List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error) {
	base := `FROM users u
JOIN tutor_profiles p ON p.user_id = u.id
WHERE u.role = 'tutor' AND u.active = TRUE AND u.blocked = FALSE AND p.profile_complete = TRUE`
	var conditions []string
	var args []interface{}

	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(p.subjects) s WHERE s ILIKE $%d)", len(args)+1))
		args = append(args, "%"+filter.Subject+"%")
	}
	if filter.Location != "" {
		conditions = append(conditions, fmt.Sprintf("(u.city ILIKE $%d OR u.area ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Location+"%")
	}
	if filter.MinExperience > 0 {
		conditions = append(conditions, fmt.Sprintf("p.experience_years >= $%d", len(args)+1))
		args = append(args, filter.MinExperience)
	}
	if filter.MinRate > 0 {
		conditions = append(conditions, fmt.Sprintf("p.monthly_rate >= $%d", len(args)+1))
		args = append(args, filter.MinRate)
	}
	if filter.MaxRate > 0 {
		conditions = append(conditions, fmt.Sprintf("p.monthly_rate <= $%d", len(args)+1))
		args = append(args, filter.MaxRate)
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY p.rating DESC, u.full_name ASC LIMIT %d OFFSET %d`,
		r.selectColumns(), base+clause, size, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tutors: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var tutors []models.TutorDetail
	for rows.Next() {
		detail, err := scanTutorDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tutor: %w", err)
		}
		tutors = append(tutors, *detail)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tutors: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tutors: %w", err)
	}
	return tutors, total, nil
}

// FindByUserID returns the directory view of a single tutor.
func (r *TutorRepository) FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM users u
JOIN tutor_profiles p ON p.user_id = u.id
WHERE u.id = $1 AND u.role = 'tutor' LIMIT 1`, r.selectColumns())
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("find tutor: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find tutor: %w", err)
		}
		return nil, sql.ErrNoRows
	}
	return scanTutorDetail(rows)
}

// FindProfile returns the raw profile row for a tutor user.
func (r *TutorRepository) FindProfile(ctx context.Context, userID string) (*models.TutorProfile, error) {
	const query = `SELECT id, user_id, subjects, experience_years, availability, monthly_rate, education, about, rating, num_reviews, profile_complete, created_at, updated_at
        FROM tutor_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.TutorProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tutor profile: %w", err)
	}
	return &profile, nil
}

// CreateProfile persists a new tutor profile.
func (r *TutorRepository) CreateProfile(ctx context.Context, profile *models.TutorProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO tutor_profiles (id, user_id, subjects, experience_years, availability, monthly_rate, education, about, rating, num_reviews, profile_complete, created_at, updated_at)
        VALUES (:id, :user_id, :subjects, :experience_years, :availability, :monthly_rate, :education, :about, :rating, :num_reviews, :profile_complete, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create tutor profile: %w", err)
	}
	return nil
}

// UpdateProfile replaces the mutable profile fields.
func (r *TutorRepository) UpdateProfile(ctx context.Context, profile *models.TutorProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tutor_profiles SET subjects = :subjects, experience_years = :experience_years,
        availability = :availability, monthly_rate = :monthly_rate, education = :education, about = :about,
        profile_complete = :profile_complete, updated_at = :updated_at WHERE user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("update tutor profile: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanTutorDetail(rows *sqlx.Rows) (*models.TutorDetail, error) {
	var detail models.TutorDetail
	err := rows.Scan(
		&detail.ID, &detail.FullName, &detail.Email, &detail.Phone, &detail.City, &detail.Area, &detail.ProfilePic,
		&detail.Profile.ID, &detail.Profile.UserID, &detail.Profile.Subjects, &detail.Profile.ExperienceYears,
		&detail.Profile.Availability, &detail.Profile.MonthlyRate, &detail.Profile.Education, &detail.Profile.About,
		&detail.Profile.Rating, &detail.Profile.NumReviews, &detail.Profile.ProfileComplete,
		&detail.Profile.CreatedAt, &detail.Profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}
