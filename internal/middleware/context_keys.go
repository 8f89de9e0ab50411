package middleware

// ContextKey is a private key type for request-context values, avoiding
// collisions with other packages.
type ContextKey string

const (
	// UserIDCtxKey holds the authenticated user's id, set by JWTAuth.
	UserIDCtxKey = ContextKey("user_id")

	// UserRoleCtxKey holds the authenticated user's role id, set by JWTAuth.
	// Downstream authorization (permission-set lookups) reads it from here.
	UserRoleCtxKey = ContextKey("user_role")
)
