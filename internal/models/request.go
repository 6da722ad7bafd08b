package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// RequestStatus represents the lifecycle of a tuition request.
type RequestStatus string

// A request starts pending and moves exactly once to accepted or rejected.
const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// TuitionRequest is a student's proposal to a specific tutor for recurring
// lessons under the stated terms. Records are never deleted; settled
// requests remain as an audit trail.
type TuitionRequest struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	TutorID        string         `db:"tutor_id" json:"tutor_id"`
	Subject        string         `db:"subject" json:"subject"`
	GradeLevel     string         `db:"grade_level" json:"grade_level"`
	PreferredDays  pq.StringArray `db:"preferred_days" json:"preferred_days"`
	PreferredTime  string         `db:"preferred_time" json:"preferred_time"`
	DurationMonths int            `db:"duration_months" json:"duration_months"`
	StartDate      time.Time      `db:"start_date" json:"start_date"`
	MonthlyFee     float64        `db:"monthly_fee" json:"monthly_fee"`
	Notes          string         `db:"notes" json:"notes,omitempty"`
	Status         RequestStatus  `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// TuitionRequestDetail enriches a request with both party names for listings.
type TuitionRequestDetail struct {
	TuitionRequest
	StudentName string `db:"student_name" json:"student_name"`
	StudentPic  string `db:"student_pic" json:"student_pic,omitempty"`
	TutorName   string `db:"tutor_name" json:"tutor_name"`
	TutorPic    string `db:"tutor_pic" json:"tutor_pic,omitempty"`
}

// CreateTuitionRequest is the payload a student submits to propose lessons.
type CreateTuitionRequest struct {
	TutorID        string    `json:"tutor_id" validate:"required,uuid4"`
	Subject        string    `json:"subject" validate:"required"`
	GradeLevel     string    `json:"grade_level" validate:"required"`
	PreferredDays  []string  `json:"preferred_days" validate:"required,min=1,dive,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	PreferredTime  string    `json:"preferred_time" validate:"required"`
	DurationMonths int       `json:"duration_months" validate:"required,min=1"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	MonthlyFee     float64   `json:"monthly_fee" validate:"gte=0"`
	Notes          string    `json:"notes"`
}

// NormalizeDays folds weekday names to the stored lowercase form. Clients
// commonly submit capitalized names ("Monday"); validation and the database
// both use lowercase.
func (r *CreateTuitionRequest) NormalizeDays() {
	for i, day := range r.PreferredDays {
		r.PreferredDays[i] = strings.ToLower(strings.TrimSpace(day))
	}
}

// AcceptRequestResult pairs the settled request with the booking it produced.
type AcceptRequestResult struct {
	Request *TuitionRequest `json:"request"`
	Booking *Booking        `json:"booking"`
}

// RequestFilter scopes request listings.
type RequestFilter struct {
	StudentID string
	TutorID   string
	Status    RequestStatus
	Page      int
	PageSize  int
}

// StudentHistory is a student's full ledger view: requests and bookings
// grouped by status.
type StudentHistory struct {
	Requests *RequestGroups `json:"requests"`
	Bookings *BookingGroups `json:"bookings"`
}

// RequestGroups partitions a student's requests by status.
type RequestGroups struct {
	Pending  []TuitionRequestDetail `json:"pending"`
	Accepted []TuitionRequestDetail `json:"accepted"`
	Rejected []TuitionRequestDetail `json:"rejected"`
	Total    int                    `json:"total"`
}
