package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
)

type bookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error)
	Extensions(ctx context.Context, bookingID string) ([]models.BookingExtension, error)
	Extend(ctx context.Context, id string, previousEnd, newEnd time.Time, extendedOn time.Time) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	ListForParty(ctx context.Context, userID string, role models.UserRole) ([]models.BookingDetail, error)
	ActiveStudentsForTutor(ctx context.Context, tutorID string) ([]models.ActiveStudent, error)
}

// BookingService owns the booking side of the lifecycle: role-scoped
// listings, extensions and cancellation. Extensions move the end date
// forward by whole calendar months and leave an audit row each.
type BookingService struct {
	repo      bookingRepository
	audits    auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewBookingService constructs a BookingService.
func NewBookingService(repo bookingRepository, audits auditWriter, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &BookingService{repo: repo, audits: audits, validator: validate, logger: logger, metrics: metrics}
}

// Get returns one booking with party names and extension history. Only the
// two parties (or an admin) may read it.
func (s *BookingService) Get(ctx context.Context, id string, actorID string, actorRole models.UserRole) (*models.BookingDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch booking")
	}

	if actorRole != models.RoleAdmin && detail.StudentID != actorID && detail.TutorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not a party to this booking")
	}

	return detail, nil
}

// List returns the actor's bookings grouped by status.
func (s *BookingService) List(ctx context.Context, actorID string, actorRole models.UserRole) (*models.BookingGroups, error) {
	if actorRole != models.RoleStudent && actorRole != models.RoleTutor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "listing bookings requires a student or tutor account")
	}

	items, err := s.repo.ListForParty(ctx, actorID, actorRole)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return groupBookings(items), nil
}

// Extend pushes an active booking's end date forward by whole calendar
// months. Either party may extend. The repository pins the previous end
// date so two racing extends cannot both apply.
func (s *BookingService) Extend(ctx context.Context, id string, actorID string, req models.ExtendBookingRequest) (*models.BookingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "additional months must be at least 1")
	}

	booking, err := s.loadForTransition(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	previousEnd := booking.EndDate
	newEnd := previousEnd.AddDate(0, req.AdditionalMonths, 0)
	now := time.Now().UTC()

	won, err := s.repo.Extend(ctx, id, previousEnd, newEnd, now)
	if err != nil {
		s.recordTransition("extend", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to extend booking")
	}
	if !won {
		s.recordTransition("extend", "conflict")
		return nil, s.transitionConflict(ctx, id, "extended")
	}
	s.recordTransition("extend", "ok")

	s.writeAudit(ctx, actorID, models.AuditActionBookingExtend, id,
		fmt.Sprintf(`{"previous_end_date":%q,"new_end_date":%q}`, previousEnd.Format("2006-01-02"), newEnd.Format("2006-01-02")))

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload booking")
	}
	return detail, nil
}

// Cancel moves an active booking to its terminal cancelled state. Either
// party may cancel.
func (s *BookingService) Cancel(ctx context.Context, id string, actorID string) (*models.Booking, error) {
	booking, err := s.loadForTransition(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	won, err := s.repo.Cancel(ctx, id)
	if err != nil {
		s.recordTransition("cancel", "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}
	if !won {
		s.recordTransition("cancel", "conflict")
		return nil, s.transitionConflict(ctx, id, "cancelled")
	}
	s.recordTransition("cancel", "ok")

	booking.Status = models.BookingStatusCancelled
	booking.UpdatedAt = time.Now().UTC()

	s.writeAudit(ctx, actorID, models.AuditActionBookingCancel, id, `{"status":"cancelled"}`)

	return booking, nil
}

// ActiveStudents lists the students a tutor currently teaches.
func (s *BookingService) ActiveStudents(ctx context.Context, tutorID string) ([]models.ActiveStudent, error) {
	students, err := s.repo.ActiveStudentsForTutor(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active students")
	}
	return students, nil
}

// loadForTransition fetches the booking and enforces the party allow-list:
// extend and cancel are open to the booking's student and tutor, nobody
// else. The active check happens again in the repository CAS.
func (s *BookingService) loadForTransition(ctx context.Context, id string, actorID string) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch booking")
	}

	if booking.StudentID != actorID && booking.TutorID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not a party to this booking")
	}

	if booking.Status != models.BookingStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("booking is already %s", booking.Status))
	}

	return booking, nil
}

// transitionConflict re-reads the booking after a lost CAS so the conflict
// message names the state that won the race.
func (s *BookingService) transitionConflict(ctx context.Context, id string, verb string) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return appErrors.Clone(appErrors.ErrConflict, "booking changed concurrently, please retry")
	}
	if current.Status == models.BookingStatusActive {
		// a concurrent extend moved the end date but the booking stays active
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("booking was concurrently %s, please retry", verb))
	}
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("booking is already %s", current.Status))
}

func (s *BookingService) recordTransition(transition, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLifecycleTransition("booking", transition, outcome)
	}
}

func (s *BookingService) writeAudit(ctx context.Context, actorID, action, resourceID, newValues string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "booking",
		ResourceID: &resourceID,
		NewValues:  []byte(newValues),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err))
	}
}
