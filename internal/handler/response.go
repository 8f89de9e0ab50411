package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/teamdesk/user-service/internal/entity"
	"github.com/teamdesk/user-service/internal/repository"
	"github.com/teamdesk/user-service/internal/usecase"
)

// Envelope is the uniform response shape. EC is 0 on success; failures carry
// a non-zero EC and a human-readable message.
type Envelope struct {
	EC      int         `json:"EC"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{EC: 0, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{EC: 1, Message: message, Data: data})
}

// respondUsecaseError maps the service error taxonomy onto HTTP statuses:
// validation 400, auth 401, duplicate 409, not found 404, everything else 500.
func respondUsecaseError(w http.ResponseWriter, err error) {
	var validationErr *usecase.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "validation failed", validationErr.Fields)
	case errors.Is(err, usecase.ErrInvalidCredentials),
		errors.Is(err, usecase.ErrInvalidRefreshToken):
		respondError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, repository.ErrDuplicateEmail),
		errors.Is(err, repository.ErrDuplicateUsername):
		respondError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, repository.ErrRoleNotFound):
		respondError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrUserNotDeleted):
		respondError(w, http.StatusNotFound, err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

type profileResponse struct {
	FullName    string     `json:"fullName"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	Location    string     `json:"location,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
}

// userResponse is the outward representation of a user. Password hash and
// refresh token are never part of it.
type userResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	Profile   profileResponse `json:"profile"`
	Status    string          `json:"status"`
	LastLogin *time.Time      `json:"lastLogin,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toUserResponse(u *entity.User) userResponse {
	return userResponse{
		ID:       u.ID.Hex(),
		Username: u.Username,
		Email:    u.Email,
		Role:     u.RoleID.Hex(),
		Profile: profileResponse{
			FullName:    u.Profile.FullName,
			DateOfBirth: u.Profile.DateOfBirth,
			Gender:      u.Profile.Gender,
			PhoneNumber: u.Profile.PhoneNumber,
			Location:    u.Profile.Location,
			AvatarURL:   u.Profile.AvatarURL,
		},
		Status:    u.Status,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toUserResponses(users []*entity.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

type roleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Rights      []string `json:"rights,omitempty"`
}

func toRoleResponses(roles []*entity.PermissionSet) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{
			ID:          r.ID.Hex(),
			Name:        r.Name,
			Description: r.Description,
			Rights:      r.Rights,
		})
	}
	return out
}
