package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// TutorProfile carries the marketplace-facing details of a tutor account.
type TutorProfile struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	Subjects        pq.StringArray `db:"subjects" json:"subjects"`
	ExperienceYears int            `db:"experience_years" json:"experience_years"`
	Availability    string         `db:"availability" json:"availability"`
	MonthlyRate     float64        `db:"monthly_rate" json:"monthly_rate"`
	Education       pq.StringArray `db:"education" json:"education,omitempty"`
	About           string         `db:"about" json:"about,omitempty"`
	Rating          float64        `db:"rating" json:"rating"`
	NumReviews      int            `db:"num_reviews" json:"num_reviews"`
	ProfileComplete bool           `db:"profile_complete" json:"profile_complete"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Complete reports whether the profile carries enough detail to be listed
// in the public directory.
func (p *TutorProfile) Complete() bool {
	return len(p.Subjects) > 0 &&
		p.ExperienceYears > 0 &&
		p.Availability != "" &&
		p.MonthlyRate > 0 &&
		len(strings.TrimSpace(p.About)) > 10
}

// TutorProfileRequest is the payload for creating or updating a profile.
type TutorProfileRequest struct {
	Subjects        []string `json:"subjects" validate:"required,min=1"`
	ExperienceYears int      `json:"experience_years" validate:"gte=0"`
	Availability    string   `json:"availability" validate:"required"`
	MonthlyRate     float64  `json:"monthly_rate" validate:"gt=0"`
	Education       []string `json:"education"`
	About           string   `json:"about"`
}

// TutorDetail joins the user account with its profile for directory views.
type TutorDetail struct {
	ID         string       `db:"id" json:"id"`
	FullName   string       `db:"full_name" json:"full_name"`
	Email      string       `db:"email" json:"email"`
	Phone      string       `db:"phone" json:"phone,omitempty"`
	City       string       `db:"city" json:"city,omitempty"`
	Area       string       `db:"area" json:"area,omitempty"`
	ProfilePic string       `db:"profile_pic" json:"profile_pic,omitempty"`
	Profile    TutorProfile `json:"profile"`
}

// TutorFilter captures the public directory search criteria.
type TutorFilter struct {
	Subject       string
	Location      string
	MinExperience int
	MinRate       float64
	MaxRate       float64
	Page          int
	PageSize      int
}
