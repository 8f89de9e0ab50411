package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamdesk/user-service/internal/entity"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testUser() *entity.User {
	return &entity.User{
		ID:     primitive.NewObjectID(),
		RoleID: primitive.NewObjectID(),
	}
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	svc := NewService("secret", time.Minute, time.Hour)
	user := testUser()

	raw, err := svc.IssueAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.Verify(raw, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.Subject)
	assert.Equal(t, user.RoleID.Hex(), claims.Role)
}

func TestVerify_KindMismatch(t *testing.T) {
	svc := NewService("secret", time.Minute, time.Hour)
	user := testUser()

	refresh, err := svc.IssueRefreshToken(user)
	require.NoError(t, err)

	_, err = svc.Verify(refresh, KindAccess)
	assert.ErrorIs(t, err, ErrInvalid)

	access, err := svc.IssueAccessToken(user)
	require.NoError(t, err)
	_, err = svc.Verify(access, KindRefresh)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_Expired(t *testing.T) {
	svc := NewService("secret", -time.Minute, time.Hour)

	raw, err := svc.IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = svc.Verify(raw, KindAccess)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	raw, err := NewService("secret-a", time.Minute, time.Hour).IssueAccessToken(testUser())
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Minute, time.Hour).Verify(raw, KindAccess)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_Garbage(t *testing.T) {
	svc := NewService("secret", time.Minute, time.Hour)
	_, err := svc.Verify("not.a.jwt", KindAccess)
	assert.ErrorIs(t, err, ErrInvalid)
}
