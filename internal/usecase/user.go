package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/teamdesk/user-service/internal/entity"
	"github.com/teamdesk/user-service/internal/repository"
	"github.com/teamdesk/user-service/internal/token"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for every authentication failure on
	// login: unknown email, deleted user, inactive account or wrong password.
	// The message deliberately does not say which.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidRefreshToken covers expired, forged and superseded refresh
	// tokens alike.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError carries field-level messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UserRepository is the persistence port backing the usecase. Implemented by
// repository.UserRepository.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) (primitive.ObjectID, error)
	GetByID(ctx context.Context, userID primitive.ObjectID) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	List(ctx context.Context) ([]*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
	UpdateProfile(ctx context.Context, userID primitive.ObjectID, profile entity.Profile) error
	SetLoginState(ctx context.Context, userID primitive.ObjectID, refreshToken string, at time.Time) error
	ClearRefreshToken(ctx context.Context, userID primitive.ObjectID) error
	SoftDelete(ctx context.Context, userID primitive.ObjectID) error
	Restore(ctx context.Context, userID primitive.ObjectID) error
}

// RoleRepository reads permission sets.
type RoleRepository interface {
	List(ctx context.Context) ([]*entity.PermissionSet, error)
	Exists(ctx context.Context, roleID primitive.ObjectID) (bool, error)
}

// TokenService issues and verifies the access/refresh pair.
type TokenService interface {
	IssueAccessToken(u *entity.User) (string, error)
	IssueRefreshToken(u *entity.User) (string, error)
	Verify(tokenString string, kind token.Kind) (*token.Claims, error)
}

// Storage stores an uploaded file and returns its public URL.
type Storage interface {
	Upload(ctx context.Context, fileName string, data []byte) (string, error)
}

// EventPublisher announces user lifecycle changes. Publishing is best-effort;
// failures are logged, never returned to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Mailer sends the welcome mail after an admin creates an account.
type Mailer interface {
	SendWelcome(toEmail, toName string) error
}

const (
	SubjectUserCreated  = "user.created"
	SubjectUserDeleted  = "user.deleted"
	SubjectUserRestored = "user.restored"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type UserUsecase struct {
	users   UserRepository
	roles   RoleRepository
	tokens  TokenService
	storage Storage
	events  EventPublisher
	mailer  Mailer
	logger  *zap.Logger
}

func NewUserUsecase(users UserRepository, roles RoleRepository, tokens TokenService, storage Storage, events EventPublisher, mailer Mailer, logger *zap.Logger) *UserUsecase {
	return &UserUsecase{
		users:   users,
		roles:   roles,
		tokens:  tokens,
		storage: storage,
		events:  events,
		mailer:  mailer,
		logger:  logger.Named("UserUsecase"),
	}
}

// CreateUserInput is the admin-initiated "add user" payload.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	RoleID   string
	FullName string
	Status   string
}

func (u *UserUsecase) CreateUser(ctx context.Context, input CreateUserInput) (*entity.User, error) {
	fields := map[string]string{}
	if !emailPattern.MatchString(input.Email) {
		fields["email"] = "please include a valid email"
	}
	if len(input.Password) < 6 {
		fields["password"] = "please enter a password with 6 or more characters"
	}
	if input.RoleID == "" {
		fields["role"] = "role is required"
	}
	if input.Username == "" {
		fields["username"] = "username is required"
	}
	if input.FullName == "" {
		fields["fullName"] = "full name is required"
	}
	if input.Status != "" && input.Status != entity.StatusActive && input.Status != entity.StatusInactive {
		fields["status"] = "status must be Active or Inactive"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	roleID, err := primitive.ObjectIDFromHex(input.RoleID)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"role": "role must be a valid id"}}
	}
	exists, err := u.roles.Exists(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrRoleNotFound
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		u.logger.Error("Failed to hash password during user creation", zap.String("email", input.Email), zap.Error(err))
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = entity.StatusInactive
	}

	user := &entity.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashed),
		RoleID:       roleID,
		Profile:      entity.Profile{FullName: input.FullName},
		Status:       status,
	}

	userID, err := u.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	created, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	u.publish(ctx, SubjectUserCreated, map[string]string{"user_id": userID.Hex(), "email": created.Email})
	if u.mailer != nil {
		if err := u.mailer.SendWelcome(created.Email, created.Profile.FullName); err != nil {
			u.logger.Warn("Failed to send welcome email", zap.String("email", created.Email), zap.Error(err))
		}
	}
	return created, nil
}

func (u *UserUsecase) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Status != entity.StatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := u.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := u.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	if err := u.users.SetLoginState(ctx, user.ID, refreshToken, time.Now()); err != nil {
		return nil, err
	}

	u.logger.Info("User logged in", zap.String("userID", user.ID.Hex()))
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// RefreshAccessToken verifies the presented refresh token against both its own
// signature/expiry and the copy stored on the user record, then issues a fresh
// access token. The refresh token itself is not rotated.
func (u *UserUsecase) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := u.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	userID, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}
	// A logout or a newer login clears or replaces the stored slot; either way
	// the presented token no longer matches and is rejected.
	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return "", ErrInvalidRefreshToken
	}

	return u.tokens.IssueAccessToken(user)
}

func (u *UserUsecase) Logout(ctx context.Context, userID primitive.ObjectID) error {
	return u.users.ClearRefreshToken(ctx, userID)
}

func (u *UserUsecase) ListUsers(ctx context.Context) ([]*entity.User, error) {
	return u.users.List(ctx)
}

func (u *UserUsecase) GetUser(ctx context.Context, userID primitive.ObjectID) (*entity.User, error) {
	return u.users.GetByID(ctx, userID)
}

// UpdateUserInput is the admin update payload. RoleID is mandatory on this
// path; the remaining fields patch only when set.
type UpdateUserInput struct {
	RoleID   string
	Username *string
	Email    *string
	Status   *string
	FullName *string
}

func (u *UserUsecase) UpdateUser(ctx context.Context, userID primitive.ObjectID, input UpdateUserInput) (*entity.User, error) {
	if input.RoleID == "" {
		return nil, &ValidationError{Fields: map[string]string{"role": "role is required"}}
	}
	roleID, err := primitive.ObjectIDFromHex(input.RoleID)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"role": "role must be a valid id"}}
	}
	exists, err := u.roles.Exists(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrRoleNotFound
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.RoleID = roleID
	if input.Username != nil {
		user.Username = *input.Username
	}
	if input.Email != nil {
		if !emailPattern.MatchString(*input.Email) {
			return nil, &ValidationError{Fields: map[string]string{"email": "please include a valid email"}}
		}
		user.Email = *input.Email
	}
	if input.Status != nil {
		if *input.Status != entity.StatusActive && *input.Status != entity.StatusInactive {
			return nil, &ValidationError{Fields: map[string]string{"status": "status must be Active or Inactive"}}
		}
		user.Status = *input.Status
	}
	if input.FullName != nil {
		user.Profile.FullName = *input.FullName
	}

	if err := u.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return u.users.GetByID(ctx, userID)
}

// ProfilePatch merges into the stored profile; nil fields are left untouched.
type ProfilePatch struct {
	FullName    *string
	DateOfBirth *time.Time
	Gender      *string
	PhoneNumber *string
	Location    *string
}

// AvatarUpload is the raw file selected in the avatar modal.
type AvatarUpload struct {
	FileName string
	Data     []byte
}

func (u *UserUsecase) UpdateUserProfile(ctx context.Context, userID primitive.ObjectID, patch ProfilePatch, avatar *AvatarUpload) (*entity.User, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := user.Profile
	if patch.FullName != nil {
		if *patch.FullName == "" {
			return nil, &ValidationError{Fields: map[string]string{"fullName": "full name is required"}}
		}
		profile.FullName = *patch.FullName
	}
	if patch.DateOfBirth != nil {
		profile.DateOfBirth = patch.DateOfBirth
	}
	if patch.Gender != nil {
		if !entity.ValidGender(*patch.Gender) {
			return nil, &ValidationError{Fields: map[string]string{"gender": "gender must be Male, Female or Other"}}
		}
		profile.Gender = *patch.Gender
	}
	if patch.PhoneNumber != nil {
		profile.PhoneNumber = *patch.PhoneNumber
	}
	if patch.Location != nil {
		profile.Location = *patch.Location
	}

	if avatar != nil {
		url, err := u.storage.Upload(ctx, avatar.FileName, avatar.Data)
		if err != nil {
			u.logger.Error("Failed to upload avatar", zap.String("userID", userID.Hex()), zap.Error(err))
			return nil, err
		}
		profile.AvatarURL = url
	}

	if err := u.users.UpdateProfile(ctx, userID, profile); err != nil {
		return nil, err
	}
	return u.users.GetByID(ctx, userID)
}

func (u *UserUsecase) DeleteUser(ctx context.Context, userID primitive.ObjectID) error {
	if err := u.users.SoftDelete(ctx, userID); err != nil {
		return err
	}
	u.publish(ctx, SubjectUserDeleted, map[string]string{"user_id": userID.Hex()})
	return nil
}

func (u *UserUsecase) RestoreUser(ctx context.Context, userID primitive.ObjectID) error {
	if err := u.users.Restore(ctx, userID); err != nil {
		return err
	}
	u.publish(ctx, SubjectUserRestored, map[string]string{"user_id": userID.Hex()})
	return nil
}

func (u *UserUsecase) ListRoles(ctx context.Context) ([]*entity.PermissionSet, error) {
	return u.roles.List(ctx)
}

func (u *UserUsecase) publish(ctx context.Context, subject string, data interface{}) {
	if u.events == nil {
		return
	}
	if err := u.events.Publish(ctx, subject, data); err != nil {
		u.logger.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
