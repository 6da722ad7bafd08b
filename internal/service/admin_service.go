package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
	"github.com/tutorlink/tutorlink-api/pkg/export"
)

type adminUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	SetBlocked(ctx context.Context, id string, blocked bool) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type adminRequestRepository interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.TuitionRequestDetail, int, error)
}

type adminBookingRepository interface {
	ListAll(ctx context.Context, status models.BookingStatus) ([]models.BookingDetail, error)
}

type statsRepository interface {
	UserCounts(ctx context.Context) (*models.UserCounts, error)
	RequestCounts(ctx context.Context) (*models.RequestCounts, error)
	ActiveBookingFigures(ctx context.Context) (int, float64, error)
	RecentUsers(ctx context.Context, limit int) ([]models.User, error)
	RecentRequests(ctx context.Context, limit int) ([]models.TuitionRequestDetail, error)
}

const (
	statsCacheKey    = "admin:stats"
	recentItemsLimit = 5
)

// ExportFormat selects the rendering for the admin bookings report.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// AdminService serves the back-office surface: user administration, global
// request listings, dashboard statistics and report exports.
type AdminService struct {
	users    adminUserRepository
	requests adminRequestRepository
	bookings adminBookingRepository
	stats    statsRepository
	cache    *CacheService
	cacheTTL time.Duration
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(users adminUserRepository, requests adminRequestRepository, bookings adminBookingRepository, stats statsRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AdminService{
		users:    users,
		requests: requests,
		bookings: bookings,
		stats:    stats,
		cache:    cache,
		cacheTTL: cacheTTL,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ListUsers returns all accounts matching the filter.
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// SetUserBlocked toggles an account's blocked flag. Admin accounts cannot
// be blocked.
func (s *AdminService) SetUserBlocked(ctx context.Context, adminID, userID string, blocked bool) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if user.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin accounts cannot be blocked")
	}

	if user.Blocked == blocked {
		return user, nil
	}

	if err := s.users.SetBlocked(ctx, userID, blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	user.Blocked = blocked
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionUserBlock,
		Resource:   "user",
		ResourceID: &userID,
		NewValues:  []byte(fmt.Sprintf(`{"blocked":%t}`, blocked)),
	}); err != nil {
		s.logger.Warn("failed to write block audit log", zap.Error(err))
	}

	s.invalidateStats(ctx)

	return user, nil
}

// ListRequests returns every tuition request across all parties.
func (s *AdminService) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.TuitionRequestDetail, int, error) {
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return items, total, nil
}

// Statistics assembles the dashboard aggregate, cached in Redis.
func (s *AdminService) Statistics(ctx context.Context) (*models.Statistics, error) {
	if s.cache != nil && s.cache.Enabled() {
		var cached models.Statistics
		if found, err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}

	userCounts, err := s.stats.UserCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	requestCounts, err := s.stats.RequestCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	activeBookings, revenue, err := s.stats.ActiveBookingFigures(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate bookings")
	}
	recentUsers, err := s.stats.RecentUsers(ctx, recentItemsLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent users")
	}
	recentRequests, err := s.stats.RecentRequests(ctx, recentItemsLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent requests")
	}

	statistics := &models.Statistics{
		Users:          *userCounts,
		Requests:       *requestCounts,
		ActiveBookings: activeBookings,
		TotalRevenue:   revenue,
		RecentUsers:    recentUsers,
		RecentRequests: recentRequests,
		GeneratedAt:    time.Now().UTC(),
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, statsCacheKey, statistics, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache admin statistics", zap.Error(err))
		}
	}

	return statistics, nil
}

// ExportBookings renders the bookings report in the requested format.
func (s *AdminService) ExportBookings(ctx context.Context, status models.BookingStatus, format ExportFormat) ([]byte, string, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	bookings, err := s.bookings.ListAll(ctx, status)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	dataset := bookingsDataset(bookings)

	switch format {
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, "Bookings Report")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return payload, "application/pdf", nil
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return payload, "text/csv", nil
	}
}

func (s *AdminService) invalidateStats(ctx context.Context) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, statsCacheKey); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}

func bookingsDataset(bookings []models.BookingDetail) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"ID", "Student", "Tutor", "Subject", "Start Date", "End Date", "Monthly Fee", "Status", "Extended"},
	}
	for _, b := range bookings {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":          b.ID,
			"Student":     b.StudentName,
			"Tutor":       b.TutorName,
			"Subject":     b.Subject,
			"Start Date":  b.StartDate.Format("2006-01-02"),
			"End Date":    b.EndDate.Format("2006-01-02"),
			"Monthly Fee": fmt.Sprintf("%.2f", b.MonthlyFee),
			"Status":      string(b.Status),
			"Extended":    fmt.Sprintf("%t", b.Extended),
		})
	}
	return dataset
}
