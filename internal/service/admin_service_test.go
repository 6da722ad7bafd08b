package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
)

type mockAdminUsers struct {
	users   map[string]*models.User
	blocked map[string]bool
	audits  []*models.AuditLog
}

func newMockAdminUsers() *mockAdminUsers {
	return &mockAdminUsers{users: make(map[string]*models.User), blocked: make(map[string]bool)}
}

func (m *mockAdminUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAdminUsers) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockAdminUsers) SetBlocked(ctx context.Context, id string, blocked bool) error {
	user, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Blocked = blocked
	m.blocked[id] = blocked
	return nil
}

func (m *mockAdminUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

type mockAdminRequests struct {
	items []models.TuitionRequestDetail
}

func (m *mockAdminRequests) List(ctx context.Context, filter models.RequestFilter) ([]models.TuitionRequestDetail, int, error) {
	return m.items, len(m.items), nil
}

type mockAdminBookings struct {
	items []models.BookingDetail
}

func (m *mockAdminBookings) ListAll(ctx context.Context, status models.BookingStatus) ([]models.BookingDetail, error) {
	return m.items, nil
}

type mockStats struct{}

func (m *mockStats) UserCounts(ctx context.Context) (*models.UserCounts, error) {
	return &models.UserCounts{Total: 10, Tutors: 4, Students: 5}, nil
}

func (m *mockStats) RequestCounts(ctx context.Context) (*models.RequestCounts, error) {
	return &models.RequestCounts{Total: 7, Pending: 2, Accepted: 4, Rejected: 1}, nil
}

func (m *mockStats) ActiveBookingFigures(ctx context.Context) (int, float64, error) {
	return 4, 18000, nil
}

func (m *mockStats) RecentUsers(ctx context.Context, limit int) ([]models.User, error) {
	return []models.User{{ID: "u1"}}, nil
}

func (m *mockStats) RecentRequests(ctx context.Context, limit int) ([]models.TuitionRequestDetail, error) {
	return []models.TuitionRequestDetail{}, nil
}

func newTestAdminService(users *mockAdminUsers, bookings *mockAdminBookings) *AdminService {
	return NewAdminService(users, &mockAdminRequests{}, bookings, &mockStats{}, nil, 0, zap.NewNop())
}

func TestAdminServiceBlockUser(t *testing.T) {
	users := newMockAdminUsers()
	users.users["u1"] = &models.User{ID: "u1", Role: models.RoleStudent}
	svc := newTestAdminService(users, &mockAdminBookings{})

	user, err := svc.SetUserBlocked(context.Background(), "admin-1", "u1", true)
	require.NoError(t, err)
	assert.True(t, user.Blocked)
	assert.True(t, users.blocked["u1"])
	require.Len(t, users.audits, 1)
	assert.Equal(t, models.AuditActionUserBlock, users.audits[0].Action)
}

func TestAdminServiceBlockAdminForbidden(t *testing.T) {
	users := newMockAdminUsers()
	users.users["a1"] = &models.User{ID: "a1", Role: models.RoleAdmin}
	svc := newTestAdminService(users, &mockAdminBookings{})

	_, err := svc.SetUserBlocked(context.Background(), "admin-1", "a1", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAdminServiceBlockMissingUser(t *testing.T) {
	svc := newTestAdminService(newMockAdminUsers(), &mockAdminBookings{})

	_, err := svc.SetUserBlocked(context.Background(), "admin-1", "ghost", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAdminServiceBlockIdempotent(t *testing.T) {
	users := newMockAdminUsers()
	users.users["u1"] = &models.User{ID: "u1", Role: models.RoleTutor, Blocked: true}
	svc := newTestAdminService(users, &mockAdminBookings{})

	user, err := svc.SetUserBlocked(context.Background(), "admin-1", "u1", true)
	require.NoError(t, err)
	assert.True(t, user.Blocked)
	assert.Empty(t, users.audits)
}

func TestAdminServiceStatistics(t *testing.T) {
	svc := newTestAdminService(newMockAdminUsers(), &mockAdminBookings{})

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Users.Total)
	assert.Equal(t, 2, stats.Requests.Pending)
	assert.Equal(t, 4, stats.ActiveBookings)
	assert.Equal(t, float64(18000), stats.TotalRevenue)
	assert.False(t, stats.GeneratedAt.IsZero())
}

func TestAdminServiceExportBookingsCSV(t *testing.T) {
	bookings := &mockAdminBookings{items: []models.BookingDetail{
		{Booking: models.Booking{ID: "b1", Subject: "Math", MonthlyFee: 4000, Status: models.BookingStatusActive}, StudentName: "Amina", TutorName: "Karim"},
	}}
	svc := newTestAdminService(newMockAdminUsers(), bookings)

	payload, contentType, err := svc.ExportBookings(context.Background(), "", ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	body := string(payload)
	assert.True(t, strings.Contains(body, "Math"))
	assert.True(t, strings.Contains(body, "Amina"))
}

func TestAdminServiceExportBookingsPDF(t *testing.T) {
	svc := newTestAdminService(newMockAdminUsers(), &mockAdminBookings{})

	payload, contentType, err := svc.ExportBookings(context.Background(), models.BookingStatusActive, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)
}

func TestAdminServiceExportUnknownFormat(t *testing.T) {
	svc := newTestAdminService(newMockAdminUsers(), &mockAdminBookings{})

	_, _, err := svc.ExportBookings(context.Background(), "", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
