package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
)

type requestRepository interface {
	Create(ctx context.Context, request *models.TuitionRequest) error
	FindByID(ctx context.Context, id string) (*models.TuitionRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.TuitionRequestDetail, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.TuitionRequestDetail, int, error)
	Reject(ctx context.Context, id string) (bool, error)
	AcceptAndBook(ctx context.Context, id string, booking *models.Booking) (bool, error)
	GroupedByStudent(ctx context.Context, studentID string) (*models.RequestGroups, error)
	CountPendingForTutor(ctx context.Context, tutorID string) (int, error)
}

type requestUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type requestBookingReader interface {
	ListForParty(ctx context.Context, userID string, role models.UserRole) ([]models.BookingDetail, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RequestService coordinates the tuition-request side of the lifecycle:
// creation, settlement (accept/reject) and role-scoped listings.
type RequestService struct {
	repo      requestRepository
	users     requestUserReader
	bookings  requestBookingReader
	audits    auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewRequestService constructs a RequestService.
func NewRequestService(repo requestRepository, users requestUserReader, bookings requestBookingReader, audits auditWriter, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequestService{
		repo:      repo,
		users:     users,
		bookings:  bookings,
		audits:    audits,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
	}
}

// Create records a new pending tuition request from a student to a tutor.
func (s *RequestService) Create(ctx context.Context, studentID string, req models.CreateTuitionRequest) (*models.TuitionRequest, error) {
	req.NormalizeDays()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tuition request payload")
	}

	tutor, err := s.users.FindByID(ctx, req.TutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve tutor")
	}
	if tutor.Role != models.RoleTutor || !tutor.Active || tutor.Blocked {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
	}

	request := &models.TuitionRequest{
		StudentID:      studentID,
		TutorID:        req.TutorID,
		Subject:        req.Subject,
		GradeLevel:     req.GradeLevel,
		PreferredDays:  pq.StringArray(req.PreferredDays),
		PreferredTime:  req.PreferredTime,
		DurationMonths: req.DurationMonths,
		StartDate:      req.StartDate,
		MonthlyFee:     req.MonthlyFee,
		Notes:          req.Notes,
		Status:         models.RequestStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		s.recordTransition("request", "create", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tuition request")
	}
	s.recordTransition("request", "create", "ok")

	s.writeAudit(ctx, studentID, models.AuditActionRequestCreate, request.ID, fmt.Sprintf(`{"tutor_id":%q,"subject":%q}`, request.TutorID, request.Subject))

	return request, nil
}

// Get returns one request with party names. Only the two parties (or an
// admin) may read it.
func (s *RequestService) Get(ctx context.Context, id string, actorID string, actorRole models.UserRole) (*models.TuitionRequestDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tuition request")
	}

	if actorRole != models.RoleAdmin && detail.StudentID != actorID && detail.TutorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not a party to this request")
	}

	return detail, nil
}

// List returns the actor's requests, newest first, optionally filtered by
// status.
func (s *RequestService) List(ctx context.Context, actorID string, actorRole models.UserRole, status models.RequestStatus, page, pageSize int) ([]models.TuitionRequestDetail, int, error) {
	if status != "" && status != models.RequestStatusPending && status != models.RequestStatusAccepted && status != models.RequestStatusRejected {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request status %q", status))
	}

	filter := models.RequestFilter{Status: status, Page: page, PageSize: pageSize}
	switch actorRole {
	case models.RoleStudent:
		filter.StudentID = actorID
	case models.RoleTutor:
		filter.TutorID = actorID
	default:
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "listing requests requires a student or tutor account")
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tuition requests")
	}
	return items, total, nil
}

// Accept settles a pending request in the actor tutor's favor and creates
// the booking in the same transaction.
func (s *RequestService) Accept(ctx context.Context, id string, actorID string) (*models.AcceptRequestResult, error) {
	request, err := s.loadForSettlement(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	booking := &models.Booking{
		RequestID:  request.ID,
		StudentID:  request.StudentID,
		TutorID:    request.TutorID,
		Subject:    request.Subject,
		StartDate:  request.StartDate,
		EndDate:    request.StartDate.AddDate(0, request.DurationMonths, 0),
		DaysOfWeek: request.PreferredDays,
		TimeSlot:   request.PreferredTime,
		MonthlyFee: request.MonthlyFee,
		Status:     models.BookingStatusActive,
	}

	won, err := s.repo.AcceptAndBook(ctx, id, booking)
	if err != nil {
		s.recordTransition("request", "accept", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept tuition request")
	}
	if !won {
		s.recordTransition("request", "accept", "conflict")
		return nil, s.settlementConflict(ctx, id)
	}
	s.recordTransition("request", "accept", "ok")

	request.Status = models.RequestStatusAccepted
	request.UpdatedAt = now

	s.writeAudit(ctx, actorID, models.AuditActionRequestAccept, request.ID, fmt.Sprintf(`{"booking_id":%q}`, booking.ID))

	return &models.AcceptRequestResult{Request: request, Booking: booking}, nil
}

// Reject settles a pending request against the student.
func (s *RequestService) Reject(ctx context.Context, id string, actorID string) (*models.TuitionRequest, error) {
	request, err := s.loadForSettlement(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	won, err := s.repo.Reject(ctx, id)
	if err != nil {
		s.recordTransition("request", "reject", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject tuition request")
	}
	if !won {
		s.recordTransition("request", "reject", "conflict")
		return nil, s.settlementConflict(ctx, id)
	}
	s.recordTransition("request", "reject", "ok")

	request.Status = models.RequestStatusRejected
	request.UpdatedAt = time.Now().UTC()

	s.writeAudit(ctx, actorID, models.AuditActionRequestReject, request.ID, `{"status":"rejected"}`)

	return request, nil
}

// History returns a student's requests and bookings grouped by status.
func (s *RequestService) History(ctx context.Context, studentID string) (*models.StudentHistory, error) {
	requests, err := s.repo.GroupedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}

	bookings, err := s.bookings.ListForParty(ctx, studentID, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking history")
	}

	return &models.StudentHistory{
		Requests: requests,
		Bookings: groupBookings(bookings),
	}, nil
}

// PendingCount returns the number of open requests addressed to a tutor.
func (s *RequestService) PendingCount(ctx context.Context, tutorID string) (int, error) {
	count, err := s.repo.CountPendingForTutor(ctx, tutorID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending requests")
	}
	return count, nil
}

// loadForSettlement fetches the request and enforces that the actor is the
// stored tutor. The pending check itself happens in the repository CAS so
// a stale read here cannot settle a request twice.
func (s *RequestService) loadForSettlement(ctx context.Context, id string, actorID string) (*models.TuitionRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tuition request")
	}

	if request.TutorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the addressed tutor can settle this request")
	}

	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request already %s", request.Status))
	}

	return request, nil
}

// settlementConflict re-reads the request after a lost CAS so the conflict
// message names the status that actually won.
func (s *RequestService) settlementConflict(ctx context.Context, id string) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return appErrors.Clone(appErrors.ErrConflict, "request already settled")
	}
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request already %s", current.Status))
}

func (s *RequestService) recordTransition(entity, transition, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLifecycleTransition(entity, transition, outcome)
	}
}

func (s *RequestService) writeAudit(ctx context.Context, actorID, action, resourceID, newValues string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "tuition_request",
		ResourceID: &resourceID,
		NewValues:  []byte(newValues),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err))
	}
}

func groupBookings(items []models.BookingDetail) *models.BookingGroups {
	groups := &models.BookingGroups{
		Active:    []models.BookingDetail{},
		Completed: []models.BookingDetail{},
		Cancelled: []models.BookingDetail{},
		Total:     len(items),
	}
	for _, b := range items {
		switch b.Status {
		case models.BookingStatusActive:
			groups.Active = append(groups.Active, b)
		case models.BookingStatusCompleted:
			groups.Completed = append(groups.Completed, b)
		case models.BookingStatusCancelled:
			groups.Cancelled = append(groups.Cancelled, b)
		}
	}
	return groups
}
