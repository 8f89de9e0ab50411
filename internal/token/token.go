// Package token issues and verifies the service's access and refresh JWTs.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/teamdesk/user-service/internal/entity"
)

// Kind discriminates the two token families. A refresh token presented where
// an access token is expected (or vice versa) fails verification.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrExpired means the signature checked out but the token is past its
	// expiry. Callers that care (e.g. clients deciding to refresh) can tell
	// it apart from ErrInvalid.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers tampered, malformed and wrong-kind tokens.
	ErrInvalid = errors.New("token invalid")
)

// Claims embeds the user id as the registered subject, plus the role and the
// token kind.
type Claims struct {
	Role     string `json:"role,omitempty"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccessToken signs a short-lived token carrying the user id and role.
func (s *Service) IssueAccessToken(u *entity.User) (string, error) {
	return s.sign(u, KindAccess, s.accessTTL)
}

// IssueRefreshToken signs a long-lived token. The caller stores it on the user
// record; verification on refresh also checks that stored copy.
func (s *Service) IssueRefreshToken(u *entity.User) (string, error) {
	return s.sign(u, KindRefresh, s.refreshTTL)
}

func (s *Service) sign(u *entity.User, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenUse: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if kind == KindAccess {
		claims.Role = u.RoleID.Hex()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, expiry and kind. It returns ErrExpired for tokens
// that are merely stale and ErrInvalid for everything else.
func (s *Service) Verify(tokenString string, kind Kind) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid || claims.TokenUse != string(kind) {
		return nil, ErrInvalid
	}
	return claims, nil
}
