package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teamdesk/user-service/internal/entity"
	"github.com/teamdesk/user-service/internal/repository"
	"github.com/teamdesk/user-service/internal/token"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type MockUserRepository struct{ mock.Mock }

func (m *MockUserRepository) Create(ctx context.Context, user *entity.User) (primitive.ObjectID, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(primitive.ObjectID), args.Error(1)
}
func (m *MockUserRepository) GetByID(ctx context.Context, userID primitive.ObjectID) (*entity.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}
func (m *MockUserRepository) List(ctx context.Context) ([]*entity.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.User), args.Error(1)
}
func (m *MockUserRepository) Update(ctx context.Context, user *entity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
func (m *MockUserRepository) UpdateProfile(ctx context.Context, userID primitive.ObjectID, profile entity.Profile) error {
	args := m.Called(ctx, userID, profile)
	return args.Error(0)
}
func (m *MockUserRepository) SetLoginState(ctx context.Context, userID primitive.ObjectID, refreshToken string, at time.Time) error {
	args := m.Called(ctx, userID, refreshToken, at)
	return args.Error(0)
}
func (m *MockUserRepository) ClearRefreshToken(ctx context.Context, userID primitive.ObjectID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
func (m *MockUserRepository) SoftDelete(ctx context.Context, userID primitive.ObjectID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
func (m *MockUserRepository) Restore(ctx context.Context, userID primitive.ObjectID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockRoleRepository struct{ mock.Mock }

func (m *MockRoleRepository) List(ctx context.Context) ([]*entity.PermissionSet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.PermissionSet), args.Error(1)
}
func (m *MockRoleRepository) Exists(ctx context.Context, roleID primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, roleID)
	return args.Bool(0), args.Error(1)
}

type MockStorage struct{ mock.Mock }

func (m *MockStorage) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	args := m.Called(ctx, fileName, data)
	return args.String(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func newTokenService() *token.Service {
	return token.NewService("test-secret", 15*time.Minute, 7*24*time.Hour)
}

func activeUser(t *testing.T, password string) *entity.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &entity.User{
		ID:           primitive.NewObjectID(),
		Username:     "jdoe",
		Email:        "a@x.com",
		PasswordHash: string(hash),
		RoleID:       primitive.NewObjectID(),
		Profile:      entity.Profile{FullName: "Jane Doe"},
		Status:       entity.StatusActive,
	}
}

func newUsecase(users *MockUserRepository, roles *MockRoleRepository, storage *MockStorage, events *MockPublisher) *UserUsecase {
	var pub EventPublisher
	if events != nil {
		pub = events
	}
	return NewUserUsecase(users, roles, newTokenService(), storage, pub, nil, zap.NewNop())
}

func TestCreateUser_ValidationErrors(t *testing.T) {
	uc := newUsecase(&MockUserRepository{}, &MockRoleRepository{}, &MockStorage{}, nil)

	_, err := uc.CreateUser(context.Background(), CreateUserInput{
		Username: "jdoe",
		Email:    "not-an-email",
		Password: "short",
		RoleID:   "",
		FullName: "Jane Doe",
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "email")
	assert.Contains(t, validationErr.Fields, "password")
	assert.Contains(t, validationErr.Fields, "role")
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"username": "username is required",
		"email":    "please include a valid email",
		"password": "please enter a password with 6 or more characters",
	}}

	want := "validation failed: email: please include a valid email; " +
		"password: please enter a password with 6 or more characters; " +
		"username: username is required"
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, err.Error())
	}
}

func TestCreateUser_HashesPasswordAndDefaultsInactive(t *testing.T) {
	users := &MockUserRepository{}
	roles := &MockRoleRepository{}
	uc := newUsecase(users, roles, &MockStorage{}, nil)

	roleID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	roles.On("Exists", mock.Anything, roleID).Return(true, nil)

	users.On("Create", mock.Anything, mock.MatchedBy(func(u *entity.User) bool {
		// Plaintext must not reach the repository.
		return u.PasswordHash != "secret1" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")) == nil &&
			u.Status == entity.StatusInactive
	})).Return(userID, nil)
	users.On("GetByID", mock.Anything, userID).Return(&entity.User{ID: userID, Email: "a@x.com"}, nil)

	created, err := uc.CreateUser(context.Background(), CreateUserInput{
		Username: "jdoe",
		Email:    "a@x.com",
		Password: "secret1",
		RoleID:   roleID.Hex(),
		FullName: "Jane Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, userID, created.ID)
	users.AssertExpectations(t)
}

func TestCreateUser_UnknownRole(t *testing.T) {
	users := &MockUserRepository{}
	roles := &MockRoleRepository{}
	uc := newUsecase(users, roles, &MockStorage{}, nil)

	roleID := primitive.NewObjectID()
	roles.On("Exists", mock.Anything, roleID).Return(false, nil)

	_, err := uc.CreateUser(context.Background(), CreateUserInput{
		Username: "jdoe",
		Email:    "a@x.com",
		Password: "secret1",
		RoleID:   roleID.Hex(),
		FullName: "Jane Doe",
	})
	assert.ErrorIs(t, err, repository.ErrRoleNotFound)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	users := &MockUserRepository{}
	roles := &MockRoleRepository{}
	uc := newUsecase(users, roles, &MockStorage{}, nil)

	roleID := primitive.NewObjectID()
	roles.On("Exists", mock.Anything, roleID).Return(true, nil)
	users.On("Create", mock.Anything, mock.Anything).Return(primitive.NilObjectID, repository.ErrDuplicateEmail)

	_, err := uc.CreateUser(context.Background(), CreateUserInput{
		Username: "jdoe",
		Email:    "a@x.com",
		Password: "secret1",
		RoleID:   roleID.Hex(),
		FullName: "Jane Doe",
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestLogin_Success(t *testing.T) {
	users := &MockUserRepository{}
	uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

	user := activeUser(t, "secret1")
	users.On("GetByEmail", mock.Anything, "a@x.com").Return(user, nil)
	users.On("SetLoginState", mock.Anything, user.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	pair, err := uc.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// The issued pair verifies against its own kind only.
	tokens := newTokenService()
	claims, err := tokens.Verify(pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.Subject)
	_, err = tokens.Verify(pair.RefreshToken, token.KindAccess)
	assert.ErrorIs(t, err, token.ErrInvalid)

	users.AssertExpectations(t)
}

func TestLogin_FailuresShareTheSameError(t *testing.T) {
	user := activeUser(t, "secret1")

	tests := []struct {
		name     string
		setup    func(users *MockUserRepository)
		password string
	}{
		{
			name: "unknown email",
			setup: func(users *MockUserRepository) {
				users.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, repository.ErrUserNotFound)
			},
			password: "secret1",
		},
		{
			name: "wrong password",
			setup: func(users *MockUserRepository) {
				users.On("GetByEmail", mock.Anything, "a@x.com").Return(user, nil)
			},
			password: "wrong",
		},
		{
			name: "inactive account",
			setup: func(users *MockUserRepository) {
				inactive := *user
				inactive.Status = entity.StatusInactive
				users.On("GetByEmail", mock.Anything, "a@x.com").Return(&inactive, nil)
			},
			password: "secret1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &MockUserRepository{}
			tt.setup(users)
			uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

			_, err := uc.Login(context.Background(), "a@x.com", tt.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			users.AssertNotCalled(t, "SetLoginState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRefreshAccessToken_MatchesStoredToken(t *testing.T) {
	users := &MockUserRepository{}
	uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

	user := activeUser(t, "secret1")
	refresh, err := newTokenService().IssueRefreshToken(user)
	require.NoError(t, err)
	user.RefreshToken = refresh
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	access, err := uc.RefreshAccessToken(context.Background(), refresh)
	require.NoError(t, err)

	claims, err := newTokenService().Verify(access, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.Subject)
}

func TestRefreshAccessToken_RejectsMismatchAndForgery(t *testing.T) {
	user := activeUser(t, "secret1")
	valid, err := newTokenService().IssueRefreshToken(user)
	require.NoError(t, err)

	t.Run("stored token differs", func(t *testing.T) {
		users := &MockUserRepository{}
		superseded := *user
		superseded.RefreshToken = "some-newer-token"
		users.On("GetByID", mock.Anything, user.ID).Return(&superseded, nil)
		uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

		_, err := uc.RefreshAccessToken(context.Background(), valid)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("stored slot cleared by logout", func(t *testing.T) {
		users := &MockUserRepository{}
		loggedOut := *user
		loggedOut.RefreshToken = ""
		users.On("GetByID", mock.Anything, user.ID).Return(&loggedOut, nil)
		uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

		_, err := uc.RefreshAccessToken(context.Background(), valid)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		users := &MockUserRepository{}
		uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

		access, err := newTokenService().IssueAccessToken(user)
		require.NoError(t, err)
		_, err = uc.RefreshAccessToken(context.Background(), access)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		users := &MockUserRepository{}
		uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

		_, err := uc.RefreshAccessToken(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})
}

func TestUpdateUser_RoleRequired(t *testing.T) {
	uc := newUsecase(&MockUserRepository{}, &MockRoleRepository{}, &MockStorage{}, nil)

	_, err := uc.UpdateUser(context.Background(), primitive.NewObjectID(), UpdateUserInput{})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "role")
}

func TestUpdateUserProfile_WithAvatar(t *testing.T) {
	users := &MockUserRepository{}
	storage := &MockStorage{}
	uc := newUsecase(users, &MockRoleRepository{}, storage, nil)

	user := activeUser(t, "secret1")
	user.Profile.AvatarURL = "http://files.local/avatars/old.png"
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	const uploadedURL = "http://files.local/avatars/new.png"
	storage.On("Upload", mock.Anything, "me.png", []byte("image-bytes")).Return(uploadedURL, nil)
	users.On("UpdateProfile", mock.Anything, user.ID, mock.MatchedBy(func(p entity.Profile) bool {
		return p.AvatarURL == uploadedURL && p.FullName == "Jane Doe"
	})).Return(nil)

	_, err := uc.UpdateUserProfile(context.Background(), user.ID, ProfilePatch{}, &AvatarUpload{
		FileName: "me.png",
		Data:     []byte("image-bytes"),
	})
	require.NoError(t, err)
	users.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestUpdateUserProfile_WithoutAvatarKeepsURL(t *testing.T) {
	users := &MockUserRepository{}
	storage := &MockStorage{}
	uc := newUsecase(users, &MockRoleRepository{}, storage, nil)

	user := activeUser(t, "secret1")
	user.Profile.AvatarURL = "http://files.local/avatars/old.png"
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	location := "Berlin"
	users.On("UpdateProfile", mock.Anything, user.ID, mock.MatchedBy(func(p entity.Profile) bool {
		return p.AvatarURL == "http://files.local/avatars/old.png" && p.Location == location
	})).Return(nil)

	_, err := uc.UpdateUserProfile(context.Background(), user.ID, ProfilePatch{Location: &location}, nil)
	require.NoError(t, err)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateUserProfile_RejectsUnknownGender(t *testing.T) {
	users := &MockUserRepository{}
	uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

	user := activeUser(t, "secret1")
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	gender := "Robot"
	_, err := uc.UpdateUserProfile(context.Background(), user.ID, ProfilePatch{Gender: &gender}, nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "gender")
}

func TestDeleteAndRestorePublishEvents(t *testing.T) {
	users := &MockUserRepository{}
	events := &MockPublisher{}
	uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, events)

	userID := primitive.NewObjectID()
	users.On("SoftDelete", mock.Anything, userID).Return(nil)
	users.On("Restore", mock.Anything, userID).Return(nil)
	events.On("Publish", mock.Anything, SubjectUserDeleted, mock.Anything).Return(nil)
	events.On("Publish", mock.Anything, SubjectUserRestored, mock.Anything).Return(nil)

	require.NoError(t, uc.DeleteUser(context.Background(), userID))
	require.NoError(t, uc.RestoreUser(context.Background(), userID))
	events.AssertExpectations(t)
}

func TestRestoreUser_NeverDeleted(t *testing.T) {
	users := &MockUserRepository{}
	uc := newUsecase(users, &MockRoleRepository{}, &MockStorage{}, nil)

	userID := primitive.NewObjectID()
	users.On("Restore", mock.Anything, userID).Return(repository.ErrUserNotDeleted)

	err := uc.RestoreUser(context.Background(), userID)
	assert.ErrorIs(t, err, repository.ErrUserNotDeleted)
}
