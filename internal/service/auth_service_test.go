package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tutorlink/tutorlink-api/internal/models"
	appErrors "github.com/tutorlink/tutorlink-api/pkg/errors"
)

type mockAuthRepo struct {
	users             map[string]*models.User
	usersByEmail      map[string]*models.User
	refreshTokens     map[string]*models.RefreshToken
	auditLogs         []*models.AuditLog
	lastLoginUpdated  bool
	updatePasswordErr error
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:         make(map[string]*models.User),
		usersByEmail:  make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) add(user *models.User) {
	m.users[user.ID] = user
	m.usersByEmail[user.Email] = user
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.add(user)
	return nil
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, ok := m.usersByEmail[email]
	return ok, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if user, ok := m.users[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockProfileCreator struct {
	created []*models.TutorProfile
}

func (m *mockProfileCreator) CreateProfile(ctx context.Context, profile *models.TutorProfile) error {
	m.created = append(m.created, profile)
	return nil
}

func newTestAuthService(repo *mockAuthRepo, tutors *mockProfileCreator) *AuthService {
	return NewAuthService(repo, tutors, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "tutorlink-api-test",
	})
}

func TestAuthServiceRegisterStudent(t *testing.T) {
	repo := newMockAuthRepo()
	tutors := &mockProfileCreator{}
	svc := newTestAuthService(repo, tutors)

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Amina Rahman",
		Email:    "amina@example.com",
		Password: "password123",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.Empty(t, tutors.created)
}

func TestAuthServiceRegisterTutorCreatesProfile(t *testing.T) {
	repo := newMockAuthRepo()
	tutors := &mockProfileCreator{}
	svc := newTestAuthService(repo, tutors)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Karim Hasan",
		Email:    "karim@example.com",
		Password: "password123",
		Role:     models.RoleTutor,
		Profile: &models.TutorProfileRequest{
			Subjects:     []string{"Math"},
			Availability: "evenings",
			MonthlyRate:  5000,
			About:        "Ten years of teaching high-school math.",
		},
	})
	require.NoError(t, err)
	require.Len(t, tutors.created, 1)
	assert.True(t, tutors.created[0].Complete() == tutors.created[0].ProfileComplete)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "taken@example.com"})
	svc := newTestAuthService(repo, &mockProfileCreator{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Someone",
		Email:    "taken@example.com",
		Password: "password123",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleStudent})
	svc := newTestAuthService(repo, &mockProfileCreator{})

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true})
	svc := newTestAuthService(repo, &mockProfileCreator{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginBlocked(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true, Blocked: true, Role: models.RoleTutor})
	svc := newTestAuthService(repo, &mockProfileCreator{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBlockedAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginRoleMismatch(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleStudent})
	svc := newTestAuthService(repo, &mockProfileCreator{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password", Role: models.RoleTutor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotation(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", Active: true, Role: models.RoleStudent})
	token := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token
	svc := newTestAuthService(repo, &mockProfileCreator{})

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", Active: true})
	token := &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().UTC().Add(-time.Hour)}
	repo.refreshTokens[token.Token] = token
	svc := newTestAuthService(repo, &mockProfileCreator{})

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.DefaultCost)
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(oldHash), Active: true})
	repo.refreshTokens["t"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "t", ExpiresAt: time.Now().Add(time.Hour)}
	svc := newTestAuthService(repo, &mockProfileCreator{})

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "oldpassword", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, string(oldHash), repo.users["u1"].PasswordHash)
	assert.True(t, repo.refreshTokens["t"].Revoked)
}

func TestValidateToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newTestAuthService(repo, &mockProfileCreator{})
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleTutor, FullName: "Karim Hasan"}

	token, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleTutor, claims.Role)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestAuthService(newMockAuthRepo(), &mockProfileCreator{})

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
