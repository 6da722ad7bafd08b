package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
)

type mockTutorRepo struct {
	listed   []models.TutorDetail
	details  map[string]*models.TutorDetail
	profiles map[string]*models.TutorProfile
	created  int
	updated  int
}

func newMockTutorRepo() *mockTutorRepo {
	return &mockTutorRepo{
		details:  make(map[string]*models.TutorDetail),
		profiles: make(map[string]*models.TutorProfile),
	}
}

func (m *mockTutorRepo) List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error) {
	return m.listed, len(m.listed), nil
}

func (m *mockTutorRepo) FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error) {
	detail, ok := m.details[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return detail, nil
}

func (m *mockTutorRepo) FindProfile(ctx context.Context, userID string) (*models.TutorProfile, error) {
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

func (m *mockTutorRepo) CreateProfile(ctx context.Context, profile *models.TutorProfile) error {
	m.created++
	if profile.ID == "" {
		profile.ID = "p1"
	}
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *mockTutorRepo) UpdateProfile(ctx context.Context, profile *models.TutorProfile) error {
	m.updated++
	m.profiles[profile.UserID] = profile
	return nil
}

type mockTutorUsers struct {
	users     map[string]*models.User
	picUpdate map[string]string
	updateErr error
}

func (m *mockTutorUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockTutorUsers) UpdateProfilePic(ctx context.Context, id, profilePic string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.picUpdate == nil {
		m.picUpdate = make(map[string]string)
	}
	m.picUpdate[id] = profilePic
	return nil
}

type mockStorage struct {
	saved   []string
	deleted []string
	saveErr error
}

func (m *mockStorage) SaveStream(filename string, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	_, _ = io.Copy(io.Discard, r)
	m.saved = append(m.saved, filename)
	return filename, nil
}

func (m *mockStorage) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	return errors.New("file busy")
}

func validProfilePayload() models.TutorProfileRequest {
	return models.TutorProfileRequest{
		Subjects:        []string{"Math", "Physics"},
		ExperienceYears: 4,
		Availability:    "weekday evenings",
		MonthlyRate:     6000,
		About:           "Experienced tutor for grades 8 through 12.",
	}
}

func TestTutorServiceUpdateProfileMarksComplete(t *testing.T) {
	repo := newMockTutorRepo()
	svc := NewTutorService(repo, &mockTutorUsers{}, &mockStorage{}, nil, 0, 0, validator.New(), zap.NewNop())

	profile, err := svc.UpdateProfile(context.Background(), testTutorID, validProfilePayload())
	require.NoError(t, err)
	assert.True(t, profile.ProfileComplete)
	assert.Equal(t, 1, repo.created)
}

func TestTutorServiceUpdateProfileIncomplete(t *testing.T) {
	repo := newMockTutorRepo()
	repo.profiles[testTutorID] = &models.TutorProfile{ID: "p1", UserID: testTutorID, ProfileComplete: true}
	svc := NewTutorService(repo, &mockTutorUsers{}, &mockStorage{}, nil, 0, 0, validator.New(), zap.NewNop())

	payload := validProfilePayload()
	payload.About = "short"

	profile, err := svc.UpdateProfile(context.Background(), testTutorID, payload)
	require.NoError(t, err)
	assert.False(t, profile.ProfileComplete)
	assert.Equal(t, 1, repo.updated)
}

func TestTutorServiceUpdateProfileValidation(t *testing.T) {
	svc := NewTutorService(newMockTutorRepo(), &mockTutorUsers{}, &mockStorage{}, nil, 0, 0, validator.New(), zap.NewNop())

	payload := validProfilePayload()
	payload.Subjects = nil

	_, err := svc.UpdateProfile(context.Background(), testTutorID, payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTutorServiceGetMissing(t *testing.T) {
	svc := NewTutorService(newMockTutorRepo(), &mockTutorUsers{}, &mockStorage{}, nil, 0, 0, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTutorServiceUploadPicture(t *testing.T) {
	users := &mockTutorUsers{users: map[string]*models.User{
		testTutorID: {ID: testTutorID, Role: models.RoleTutor, ProfilePic: "old.png"},
	}}
	store := &mockStorage{}
	svc := NewTutorService(newMockTutorRepo(), users, store, nil, 0, 0, validator.New(), zap.NewNop())

	stored, err := svc.UploadProfilePicture(context.Background(), testTutorID, "me.png", 1024, bytes.NewReader([]byte("img")))
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
	assert.Equal(t, stored, users.picUpdate[testTutorID])
	require.Len(t, store.saved, 1)

	// old file deletion is best-effort; failure must not surface
	assert.Equal(t, []string{"old.png"}, store.deleted)
}

func TestTutorServiceUploadPictureRejectsExtension(t *testing.T) {
	svc := NewTutorService(newMockTutorRepo(), &mockTutorUsers{}, &mockStorage{}, nil, 0, 0, validator.New(), zap.NewNop())

	_, err := svc.UploadProfilePicture(context.Background(), testTutorID, "script.sh", 100, bytes.NewReader(nil))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTutorServiceUploadPictureRejectsOversize(t *testing.T) {
	svc := NewTutorService(newMockTutorRepo(), &mockTutorUsers{}, &mockStorage{}, nil, 0, 1024, validator.New(), zap.NewNop())

	_, err := svc.UploadProfilePicture(context.Background(), testTutorID, "big.jpg", 4096, bytes.NewReader(nil))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTutorServiceListPassesThrough(t *testing.T) {
	repo := newMockTutorRepo()
	repo.listed = []models.TutorDetail{{ID: testTutorID, FullName: "Karim Hasan"}}
	svc := NewTutorService(repo, &mockTutorUsers{}, &mockStorage{}, nil, 0, 0, validator.New(), zap.NewNop())

	tutors, total, err := svc.List(context.Background(), models.TutorFilter{Subject: "math"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Karim Hasan", tutors[0].FullName)
}
