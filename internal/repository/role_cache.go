package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teamdesk/user-service/internal/entity"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const roleListCacheKey = "permission_sets:all"

// RoleSource is the repository the cache fronts.
type RoleSource interface {
	List(ctx context.Context) ([]*entity.PermissionSet, error)
	Exists(ctx context.Context, roleID primitive.ObjectID) (bool, error)
}

// CachedRoleLister serves the permission-set list from Redis. Roles are
// read-only in this service, so a plain TTL is enough; there is no
// invalidation path. Existence checks go straight through: they guard writes
// and must not act on stale data.
type CachedRoleLister struct {
	inner  RoleSource
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedRoleLister(inner RoleSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRoleLister {
	return &CachedRoleLister{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.Named("RoleCache"),
	}
}

func (c *CachedRoleLister) List(ctx context.Context) ([]*entity.PermissionSet, error) {
	cached, err := c.client.Get(ctx, roleListCacheKey).Bytes()
	if err == nil {
		var roles []*entity.PermissionSet
		if err := json.Unmarshal(cached, &roles); err == nil {
			c.logger.Debug("Permission sets served from cache", zap.Int("count", len(roles)))
			return roles, nil
		}
		// Corrupt entry, fall through to the repository.
		c.logger.Warn("Failed to decode cached permission sets, refetching")
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Redis Get operation failed, falling back to repository", zap.Error(err))
	}

	roles, err := c.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(roles); err == nil {
		if err := c.client.Set(ctx, roleListCacheKey, data, c.ttl).Err(); err != nil {
			c.logger.Warn("Redis Set operation failed", zap.Error(err))
		}
	}
	return roles, nil
}

func (c *CachedRoleLister) Exists(ctx context.Context, roleID primitive.ObjectID) (bool, error) {
	return c.inner.Exists(ctx, roleID)
}
