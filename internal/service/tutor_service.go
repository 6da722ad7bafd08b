package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
)

type tutorRepository interface {
	List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error)
	FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error)
	FindProfile(ctx context.Context, userID string) (*models.TutorProfile, error)
	CreateProfile(ctx context.Context, profile *models.TutorProfile) error
	UpdateProfile(ctx context.Context, profile *models.TutorProfile) error
}

type tutorUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfilePic(ctx context.Context, id, profilePic string) error
}

type pictureStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

const (
	tutorListCachePrefix = "tutors:list:"
	tutorCachePrefix     = "tutors:detail:"
)

var allowedPictureExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// TutorService serves the public tutor directory and the tutor's own
// profile management.
type TutorService struct {
	repo        tutorRepository
	users       tutorUserRepository
	storage     pictureStorage
	cache       *CacheService
	cacheTTL    time.Duration
	maxFileSize int64
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTutorService constructs a TutorService.
func NewTutorService(repo tutorRepository, users tutorUserRepository, storage pictureStorage, cache *CacheService, cacheTTL time.Duration, maxFileSize int64, validate *validator.Validate, logger *zap.Logger) *TutorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if maxFileSize <= 0 {
		maxFileSize = 5 << 20
	}
	return &TutorService{
		repo:        repo,
		users:       users,
		storage:     storage,
		cache:       cache,
		cacheTTL:    cacheTTL,
		maxFileSize: maxFileSize,
		validator:   validate,
		logger:      logger,
	}
}

type tutorListPage struct {
	Items []models.TutorDetail `json:"items"`
	Total int                  `json:"total"`
}

// List returns the public directory of tutors with complete profiles.
// Results are cached per filter combination.
func (s *TutorService) List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error) {
	cacheKey := s.listCacheKey(filter)
	if s.cache != nil && s.cache.Enabled() {
		var page tutorListPage
		if found, err := s.cache.Get(ctx, cacheKey, &page); err == nil && found {
			return page.Items, page.Total, nil
		}
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tutors")
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, tutorListPage{Items: items, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache tutor list", zap.Error(err))
		}
	}

	return items, total, nil
}

// Get returns one tutor's public directory entry.
func (s *TutorService) Get(ctx context.Context, tutorID string) (*models.TutorDetail, error) {
	cacheKey := tutorCachePrefix + tutorID
	if s.cache != nil && s.cache.Enabled() {
		var cached models.TutorDetail
		if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}

	detail, err := s.repo.FindByUserID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tutor")
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, detail, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache tutor detail", zap.Error(err))
		}
	}

	return detail, nil
}

// GetOwnProfile returns the tutor's profile regardless of completeness.
func (s *TutorService) GetOwnProfile(ctx context.Context, userID string) (*models.TutorProfile, error) {
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tutor profile")
	}
	return profile, nil
}

// UpdateProfile replaces the tutor's profile fields, recomputes directory
// completeness and invalidates the cached directory.
func (s *TutorService) UpdateProfile(ctx context.Context, userID string, req models.TutorProfileRequest) (*models.TutorProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tutor profile payload")
	}

	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tutor profile")
		}
		profile = &models.TutorProfile{UserID: userID}
	}

	profile.Subjects = pq.StringArray(req.Subjects)
	profile.ExperienceYears = req.ExperienceYears
	profile.Availability = req.Availability
	profile.MonthlyRate = req.MonthlyRate
	profile.Education = pq.StringArray(req.Education)
	profile.About = req.About
	profile.ProfileComplete = profile.Complete()

	if profile.ID == "" {
		err = s.repo.CreateProfile(ctx, profile)
	} else {
		err = s.repo.UpdateProfile(ctx, profile)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save tutor profile")
	}

	s.invalidateDirectory(ctx, userID)

	return profile, nil
}

// UploadProfilePicture stores a new picture, points the account at it and
// best-effort deletes the previous file. Deletion failures are logged and
// ignored.
func (s *TutorService) UploadProfilePicture(ctx context.Context, userID, filename string, size int64, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedPictureExts[ext] {
		return "", appErrors.Clone(appErrors.ErrValidation, "profile picture must be a jpg, png or webp image")
	}
	if size > s.maxFileSize {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("profile picture exceeds the %d MB limit", s.maxFileSize>>20))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	storedName := fmt.Sprintf("%s-%s%s", userID, uuid.NewString(), ext)
	if _, err := s.storage.SaveStream(storedName, io.LimitReader(r, s.maxFileSize+1)); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store profile picture")
	}

	if err := s.users.UpdateProfilePic(ctx, userID, storedName); err != nil {
		if delErr := s.storage.Delete(storedName); delErr != nil {
			s.logger.Warn("failed to remove orphaned profile picture", zap.String("file", storedName), zap.Error(delErr))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile picture")
	}

	if user.ProfilePic != "" && user.ProfilePic != storedName {
		if err := s.storage.Delete(user.ProfilePic); err != nil {
			s.logger.Warn("failed to delete previous profile picture",
				zap.String("file", user.ProfilePic),
				zap.Error(err))
		}
	}

	s.invalidateDirectory(ctx, userID)

	return storedName, nil
}

func (s *TutorService) invalidateDirectory(ctx context.Context, userID string) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, tutorListCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate tutor list cache", zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, tutorCachePrefix+userID); err != nil {
		s.logger.Warn("failed to invalidate tutor detail cache", zap.Error(err))
	}
}

func (s *TutorService) listCacheKey(f models.TutorFilter) string {
	return fmt.Sprintf("%s%s:%s:%d:%.2f:%.2f:%d:%d",
		tutorListCachePrefix, strings.ToLower(f.Subject), strings.ToLower(f.Location),
		f.MinExperience, f.MinRate, f.MaxRate, f.Page, f.PageSize)
}
