package repository

import (
	"context"
	"errors"

	"github.com/teamdesk/user-service/internal/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var ErrRoleNotFound = errors.New("permission set not found")

type mongoRole struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	Rights      []string           `bson:"rights,omitempty"`
}

func (m *mongoRole) toEntity() *entity.PermissionSet {
	return &entity.PermissionSet{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Rights:      m.Rights,
	}
}

// RoleRepository reads permission sets. Roles are managed elsewhere; this
// service only lists them and checks that a referenced role exists.
type RoleRepository struct {
	db     *mongo.Database
	logger *zap.Logger
}

func NewRoleRepository(db *mongo.Database, logger *zap.Logger) *RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger.Named("RoleRepository"),
	}
}

func (r *RoleRepository) List(ctx context.Context) ([]*entity.PermissionSet, error) {
	r.logger.Debug("Listing permission sets")
	findOptions := options.Find().SetSort(bson.M{"name": 1})

	cursor, err := r.db.Collection("permission_sets").Find(ctx, bson.M{}, findOptions)
	if err != nil {
		r.logger.Error("DB error listing permission sets", zap.Error(err))
		return nil, err
	}
	defer cursor.Close(ctx)

	var dbRoles []*mongoRole
	if err = cursor.All(ctx, &dbRoles); err != nil {
		r.logger.Error("Error decoding permission sets", zap.Error(err))
		return nil, err
	}

	roles := make([]*entity.PermissionSet, 0, len(dbRoles))
	for _, dbRole := range dbRoles {
		roles = append(roles, dbRole.toEntity())
	}
	return roles, nil
}

func (r *RoleRepository) GetByID(ctx context.Context, roleID primitive.ObjectID) (*entity.PermissionSet, error) {
	var dbRole mongoRole
	err := r.db.Collection("permission_sets").FindOne(ctx, bson.M{"_id": roleID}).Decode(&dbRole)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoleNotFound
		}
		r.logger.Error("Database error fetching permission set", zap.String("roleID", roleID.Hex()), zap.Error(err))
		return nil, err
	}
	return dbRole.toEntity(), nil
}

// Exists backs the role existence check performed on user writes.
func (r *RoleRepository) Exists(ctx context.Context, roleID primitive.ObjectID) (bool, error) {
	count, err := r.db.Collection("permission_sets").CountDocuments(ctx, bson.M{"_id": roleID})
	if err != nil {
		r.logger.Error("Database error checking permission set existence", zap.String("roleID", roleID.Hex()), zap.Error(err))
		return false, err
	}
	return count > 0, nil
}
