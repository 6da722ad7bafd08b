package models

import "time"

// UserCounts breaks down accounts by role.
type UserCounts struct {
	Total    int `db:"total" json:"total"`
	Tutors   int `db:"tutors" json:"tutors"`
	Students int `db:"students" json:"students"`
}

// RequestCounts breaks down tuition requests by status.
type RequestCounts struct {
	Total    int `db:"total" json:"total"`
	Pending  int `db:"pending" json:"pending"`
	Accepted int `db:"accepted" json:"accepted"`
	Rejected int `db:"rejected" json:"rejected"`
}

// Statistics is the admin dashboard aggregate.
type Statistics struct {
	Users          UserCounts             `json:"users"`
	Requests       RequestCounts          `json:"requests"`
	ActiveBookings int                    `json:"active_bookings"`
	TotalRevenue   float64                `json:"total_revenue"`
	RecentUsers    []User                 `json:"recent_users"`
	RecentRequests []TuitionRequestDetail `json:"recent_requests"`
	GeneratedAt    time.Time              `json:"generated_at"`
}
