package models

import (
	"time"

	"github.com/lib/pq"
)

// BookingStatus represents the lifecycle of a booking.
type BookingStatus string

// A booking is created active, may be extended while active, and ends in
// exactly one of completed (end date passed, marked by the sweep) or
// cancelled. Both end states are terminal.
const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is the schedulable engagement materialized from an accepted
// tuition request. Exactly one booking exists per accepted request.
type Booking struct {
	ID         string         `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"request_id"`
	StudentID  string         `db:"student_id" json:"student_id"`
	TutorID    string         `db:"tutor_id" json:"tutor_id"`
	Subject    string         `db:"subject" json:"subject"`
	StartDate  time.Time      `db:"start_date" json:"start_date"`
	EndDate    time.Time      `db:"end_date" json:"end_date"`
	DaysOfWeek pq.StringArray `db:"days_of_week" json:"days_of_week"`
	TimeSlot   string         `db:"time_slot" json:"time_slot"`
	MonthlyFee float64        `db:"monthly_fee" json:"monthly_fee"`
	Status     BookingStatus  `db:"status" json:"status"`
	Extended   bool           `db:"extended" json:"extended"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// BookingExtension is an append-only audit entry documenting one forward
// adjustment of a booking's end date.
type BookingExtension struct {
	ID              string    `db:"id" json:"id"`
	BookingID       string    `db:"booking_id" json:"booking_id"`
	PreviousEndDate time.Time `db:"previous_end_date" json:"previous_end_date"`
	NewEndDate      time.Time `db:"new_end_date" json:"new_end_date"`
	ExtendedOn      time.Time `db:"extended_on" json:"extended_on"`
}

// BookingDetail enriches a booking with party names and its extension history.
type BookingDetail struct {
	Booking
	StudentName      string             `db:"student_name" json:"student_name"`
	StudentPic       string             `db:"student_pic" json:"student_pic,omitempty"`
	TutorName        string             `db:"tutor_name" json:"tutor_name"`
	TutorPic         string             `db:"tutor_pic" json:"tutor_pic,omitempty"`
	ExtensionHistory []BookingExtension `json:"extension_history"`
}

// ExtendBookingRequest is the payload for pushing a booking's end date
// forward by whole calendar months.
type ExtendBookingRequest struct {
	AdditionalMonths int `json:"additional_months" validate:"required,min=1"`
}

// BookingGroups partitions bookings by status for role-scoped listings.
type BookingGroups struct {
	Active    []BookingDetail `json:"active"`
	Completed []BookingDetail `json:"completed"`
	Cancelled []BookingDetail `json:"cancelled"`
	Total     int             `json:"total"`
}

// ActiveStudent summarises a student a tutor currently teaches.
type ActiveStudent struct {
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	StudentPic  string    `db:"student_pic" json:"student_pic,omitempty"`
	Subject     string    `db:"subject" json:"subject"`
	BookingID   string    `db:"booking_id" json:"booking_id"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
}
