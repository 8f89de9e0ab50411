package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/teamdesk/user-service/internal/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserNotDeleted    = errors.New("user is not deleted")
)

type mongoProfile struct {
	FullName    string     `bson:"full_name"`
	DateOfBirth *time.Time `bson:"date_of_birth,omitempty"`
	Gender      string     `bson:"gender,omitempty"`
	PhoneNumber string     `bson:"phone_number,omitempty"`
	Location    string     `bson:"location,omitempty"`
	AvatarURL   string     `bson:"avatar_url,omitempty"`
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	Password     string             `bson:"password"`
	RoleID       primitive.ObjectID `bson:"role_id"`
	Profile      mongoProfile       `bson:"profile"`
	Status       string             `bson:"status"`
	RefreshToken string             `bson:"refresh_token,omitempty"`
	LastLogin    *time.Time         `bson:"last_login,omitempty"`
	DeletedAt    *time.Time         `bson:"deleted_at,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func (m *mongoUser) toEntity() *entity.User {
	return &entity.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.Password,
		RoleID:       m.RoleID,
		Profile: entity.Profile{
			FullName:    m.Profile.FullName,
			DateOfBirth: m.Profile.DateOfBirth,
			Gender:      m.Profile.Gender,
			PhoneNumber: m.Profile.PhoneNumber,
			Location:    m.Profile.Location,
			AvatarURL:   m.Profile.AvatarURL,
		},
		Status:       m.Status,
		RefreshToken: m.RefreshToken,
		LastLogin:    m.LastLogin,
		DeletedAt:    m.DeletedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromEntity(e *entity.User) *mongoUser {
	return &mongoUser{
		ID:       e.ID,
		Username: e.Username,
		Email:    e.Email,
		Password: e.PasswordHash,
		RoleID:   e.RoleID,
		Profile: mongoProfile{
			FullName:    e.Profile.FullName,
			DateOfBirth: e.Profile.DateOfBirth,
			Gender:      e.Profile.Gender,
			PhoneNumber: e.Profile.PhoneNumber,
			Location:    e.Profile.Location,
			AvatarURL:   e.Profile.AvatarURL,
		},
		Status:       e.Status,
		RefreshToken: e.RefreshToken,
		LastLogin:    e.LastLogin,
		DeletedAt:    e.DeletedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// notDeleted is the filter every default read carries: soft-deleted users are
// invisible to list/get/login until restored.
func notDeleted(filter bson.M) bson.M {
	filter["deleted_at"] = nil
	return filter
}

type UserRepository struct {
	db     *mongo.Database
	logger *zap.Logger
}

func NewUserRepository(db *mongo.Database, logger *zap.Logger) *UserRepository {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure indexes (idempotent operation). Soft-deleted users keep holding
	// their username/email; a restore must not land on a conflict.
	userCollection := db.Collection("users")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, err := userCollection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Warn("Failed to create indexes for users collection (may already exist)", zap.Error(err))
	} else {
		logger.Info("Successfully ensured indexes for users collection")
	}

	return &UserRepository{
		db:     db,
		logger: logger.Named("UserRepository"),
	}
}

func duplicateKeyError(err error) error {
	var writeException mongo.WriteException
	if errors.As(err, &writeException) {
		for _, writeError := range writeException.WriteErrors {
			if writeError.Code == 11000 {
				if strings.Contains(writeError.Message, "email_1") {
					return ErrDuplicateEmail
				}
				if strings.Contains(writeError.Message, "username_1") {
					return ErrDuplicateUsername
				}
			}
		}
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) (primitive.ObjectID, error) {
	r.logger.Info("Attempting to create user in repository", zap.String("email", user.Email), zap.String("username", user.Username))

	dbUser := fromEntity(user)
	if dbUser.ID.IsZero() {
		dbUser.ID = primitive.NewObjectID()
	}
	now := time.Now()
	dbUser.CreatedAt = now
	dbUser.UpdatedAt = now
	dbUser.DeletedAt = nil
	dbUser.RefreshToken = ""
	dbUser.LastLogin = nil

	_, err := r.db.Collection("users").InsertOne(ctx, dbUser)
	if err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			r.logger.Warn("Duplicate unique field during user creation", zap.String("email", user.Email), zap.Error(dup))
			return primitive.NilObjectID, dup
		}
		r.logger.Error("Database error during user creation", zap.String("email", user.Email), zap.Error(err))
		return primitive.NilObjectID, err
	}
	r.logger.Info("User created successfully in repository", zap.String("userID", dbUser.ID.Hex()))
	return dbUser.ID, nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID primitive.ObjectID) (*entity.User, error) {
	r.logger.Debug("Attempting to get user by ID from repository", zap.String("userID", userID.Hex()))
	var dbUser mongoUser
	err := r.db.Collection("users").FindOne(ctx, notDeleted(bson.M{"_id": userID})).Decode(&dbUser)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Database error fetching user by ID", zap.String("userID", userID.Hex()), zap.Error(err))
		return nil, err
	}
	return dbUser.toEntity(), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.logger.Debug("Attempting to get user by email from repository", zap.String("email", email))
	var dbUser mongoUser
	err := r.db.Collection("users").FindOne(ctx, notDeleted(bson.M{"email": email})).Decode(&dbUser)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Database error fetching user by email", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	return dbUser.toEntity(), nil
}

func (r *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	r.logger.Debug("Listing users")
	findOptions := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := r.db.Collection("users").Find(ctx, notDeleted(bson.M{}), findOptions)
	if err != nil {
		r.logger.Error("DB error listing users", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	var dbUsers []*mongoUser
	if err = cursor.All(ctx, &dbUsers); err != nil {
		r.logger.Error("Error decoding listed users", zap.Error(err))
		return nil, err
	}

	users := make([]*entity.User, 0, len(dbUsers))
	for _, dbUser := range dbUsers {
		users = append(users, dbUser.toEntity())
	}
	r.logger.Debug("Users listed successfully", zap.Int("count", len(users)))
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	r.logger.Info("Attempting to update user in repository", zap.String("userID", user.ID.Hex()))
	user.UpdatedAt = time.Now()
	dbUser := fromEntity(user)

	updateDoc := bson.M{
		"$set": bson.M{
			"username":   dbUser.Username,
			"email":      dbUser.Email,
			"role_id":    dbUser.RoleID,
			"status":     dbUser.Status,
			"profile":    dbUser.Profile,
			"updated_at": dbUser.UpdatedAt,
		},
	}

	result, err := r.db.Collection("users").UpdateOne(ctx, notDeleted(bson.M{"_id": dbUser.ID}), updateDoc)
	if err != nil {
		if dup := duplicateKeyError(err); dup != nil {
			r.logger.Warn("Duplicate unique field during user update", zap.String("userID", user.ID.Hex()), zap.Error(dup))
			return dup
		}
		r.logger.Error("Database error during user update", zap.String("userID", user.ID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	r.logger.Info("User updated successfully in repository", zap.String("userID", user.ID.Hex()))
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID primitive.ObjectID, profile entity.Profile) error {
	r.logger.Info("Updating user profile", zap.String("userID", userID.Hex()))
	update := bson.M{
		"$set": bson.M{
			"profile": mongoProfile{
				FullName:    profile.FullName,
				DateOfBirth: profile.DateOfBirth,
				Gender:      profile.Gender,
				PhoneNumber: profile.PhoneNumber,
				Location:    profile.Location,
				AvatarURL:   profile.AvatarURL,
			},
			"updated_at": time.Now(),
		},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, notDeleted(bson.M{"_id": userID}), update)
	if err != nil {
		r.logger.Error("DB error updating profile", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetLoginState records a successful login: the freshly issued refresh token
// takes the single session slot and lastLogin is stamped.
func (r *UserRepository) SetLoginState(ctx context.Context, userID primitive.ObjectID, refreshToken string, at time.Time) error {
	r.logger.Info("Recording login", zap.String("userID", userID.Hex()))
	update := bson.M{
		"$set": bson.M{
			"refresh_token": refreshToken,
			"last_login":    at,
			"updated_at":    time.Now(),
		},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, notDeleted(bson.M{"_id": userID}), update)
	if err != nil {
		r.logger.Error("DB error recording login", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) ClearRefreshToken(ctx context.Context, userID primitive.ObjectID) error {
	r.logger.Info("Clearing refresh token", zap.String("userID", userID.Hex()))
	update := bson.M{
		"$set":   bson.M{"updated_at": time.Now()},
		"$unset": bson.M{"refresh_token": ""},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, notDeleted(bson.M{"_id": userID}), update)
	if err != nil {
		r.logger.Error("DB error clearing refresh token", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SoftDelete hides the user from default reads and drops the active session.
// The record itself is kept and can be restored.
func (r *UserRepository) SoftDelete(ctx context.Context, userID primitive.ObjectID) error {
	r.logger.Info("Soft deleting user", zap.String("userID", userID.Hex()))
	now := time.Now()
	update := bson.M{
		"$set":   bson.M{"deleted_at": now, "updated_at": now},
		"$unset": bson.M{"refresh_token": ""},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, notDeleted(bson.M{"_id": userID}), update)
	if err != nil {
		r.logger.Error("DB error soft deleting user", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	r.logger.Info("User soft deleted successfully", zap.String("userID", userID.Hex()))
	return nil
}

// Restore clears deletedAt. Restoring a user that was never deleted (or does
// not exist) fails with ErrUserNotDeleted.
func (r *UserRepository) Restore(ctx context.Context, userID primitive.ObjectID) error {
	r.logger.Info("Restoring user", zap.String("userID", userID.Hex()))
	update := bson.M{
		"$set":   bson.M{"updated_at": time.Now()},
		"$unset": bson.M{"deleted_at": ""},
	}
	filter := bson.M{"_id": userID, "deleted_at": bson.M{"$ne": nil}}
	result, err := r.db.Collection("users").UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("DB error restoring user", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotDeleted
	}
	r.logger.Info("User restored successfully", zap.String("userID", userID.Hex()))
	return nil
}
