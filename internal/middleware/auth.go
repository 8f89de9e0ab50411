package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teamdesk/user-service/internal/token"
)

// TokenVerifier is the part of the token service the middleware needs.
type TokenVerifier interface {
	Verify(tokenString string, kind token.Kind) (*token.Claims, error)
}

// JWTAuth rejects requests without a valid bearer access token and attaches
// the decoded identity and role to the request context.
func JWTAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header is required")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "authorization header must be a bearer token")
				return
			}

			claims, err := tokens.Verify(parts[1], token.KindAccess)
			if err != nil {
				// Expired and invalid both end the request; the message lets
				// a client know a refresh is worth trying.
				if err == token.ErrExpired {
					unauthorized(w, "access token expired")
				} else {
					unauthorized(w, "invalid access token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDCtxKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRoleCtxKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"EC":      1,
		"message": message,
	})
}
