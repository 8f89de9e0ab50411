package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teamdesk/user-service/internal/handler"
	"github.com/teamdesk/user-service/internal/middleware"
	"go.uber.org/zap"
)

// New wires the full HTTP surface: public auth routes, bearer-protected user
// management routes and the Prometheus scrape endpoint.
func New(userHandler *handler.UserHandler, tokens middleware.TokenVerifier, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)

	// Public routes
	r.Post("/login", userHandler.Login)
	r.Post("/refresh-token", userHandler.RefreshToken)

	// Protected routes (require a valid bearer access token)
	r.Group(func(authRouter chi.Router) {
		authRouter.Use(middleware.JWTAuth(tokens))

		authRouter.Post("/add-user", userHandler.AddUser)
		authRouter.Post("/logout", userHandler.Logout)

		authRouter.Patch("/profile", userHandler.UpdateProfile)
		authRouter.Put("/{userId}", userHandler.UpdateUser)

		authRouter.Delete("/restore/{userId}", userHandler.RestoreUser)
		authRouter.Delete("/{userId}", userHandler.DeleteUser)

		authRouter.Get("/roles", userHandler.GetRoles)
		authRouter.Get("/get-all-users", userHandler.GetAllUsers)
		authRouter.Get("/get-user/{userId}", userHandler.GetUserByID)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
