package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/teamdesk/user-service/internal/middleware"
	"github.com/teamdesk/user-service/internal/usecase"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	maxMultipartMemory = 10 << 20 // 10 MiB
	maxAvatarSize      = 5 << 20  // 5 MiB
)

var errAvatarTooLarge = errors.New("avatar file exceeds the 5 MiB limit")

type UserHandler struct {
	usecase *usecase.UserUsecase
	logger  *zap.Logger
}

func NewUserHandler(ucase *usecase.UserUsecase, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		usecase: ucase,
		logger:  logger.Named("UserHandler"),
	}
}

// Login handles POST /login.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	pair, err := h.usecase.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Failed login attempt", zap.String("email", req.Email), zap.Error(err))
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "login successful", map[string]string{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// AddUser handles POST /add-user (admin-initiated registration).
func (h *UserHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
		FullName string `json:"fullName"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	user, err := h.usecase.CreateUser(r.Context(), usecase.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.Role,
		FullName: req.FullName,
		Status:   req.Status,
	})
	if err != nil {
		h.logger.Warn("Failed to create user", zap.String("email", req.Email), zap.Error(err))
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusCreated, "user created", toUserResponse(user))
}

// RefreshToken handles POST /refresh-token.
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusUnauthorized, "refresh token is required", nil)
		return
	}

	accessToken, err := h.usecase.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "token refreshed", map[string]string{"accessToken": accessToken})
}

// Logout handles POST /logout; it invalidates the caller's refresh token.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "user id not found in token", nil)
		return
	}
	if err := h.usecase.Logout(r.Context(), userID); err != nil {
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "logged out", nil)
}

// UpdateProfile handles PATCH /profile: multipart profile fields plus an
// optional avatar file. The target user is the authenticated caller.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "user id not found in token", nil)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "request must be multipart/form-data", nil)
		return
	}

	patch := usecase.ProfilePatch{
		FullName:    formValue(r, "fullName"),
		Gender:      formValue(r, "gender"),
		PhoneNumber: formValue(r, "phoneNumber"),
		Location:    formValue(r, "location"),
	}
	if raw := formValue(r, "dateOfBirth"); raw != nil {
		dob, err := parseDate(*raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "dateOfBirth must be an ISO date", nil)
			return
		}
		patch.DateOfBirth = &dob
	}

	avatar, err := avatarFromForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	user, err := h.usecase.UpdateUserProfile(r.Context(), userID, patch, avatar)
	if err != nil {
		h.logger.Warn("Failed to update profile", zap.String("userID", userID.Hex()), zap.Error(err))
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "profile updated", toUserResponse(user))
}

// UpdateUser handles PUT /{userId} (admin update; role is mandatory).
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Role     string  `json:"role"`
		Username *string `json:"username"`
		Email    *string `json:"email"`
		Status   *string `json:"status"`
		FullName *string `json:"fullName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	user, err := h.usecase.UpdateUser(r.Context(), userID, usecase.UpdateUserInput{
		RoleID:   req.Role,
		Username: req.Username,
		Email:    req.Email,
		Status:   req.Status,
		FullName: req.FullName,
	})
	if err != nil {
		h.logger.Warn("Failed to update user", zap.String("userID", userID.Hex()), zap.Error(err))
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "user updated", toUserResponse(user))
}

// DeleteUser handles DELETE /{userId} (soft delete).
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.usecase.DeleteUser(r.Context(), userID); err != nil {
		respondUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreUser handles DELETE /restore/{userId}.
func (h *UserHandler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.usecase.RestoreUser(r.Context(), userID); err != nil {
		respondUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAllUsers handles GET /get-all-users.
func (h *UserHandler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.usecase.ListUsers(r.Context())
	if err != nil {
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "users fetched", toUserResponses(users))
}

// GetUserByID handles GET /get-user/{userId}.
func (h *UserHandler) GetUserByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	user, err := h.usecase.GetUser(r.Context(), userID)
	if err != nil {
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "user fetched", toUserResponse(user))
}

// GetRoles handles GET /roles.
func (h *UserHandler) GetRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.usecase.ListRoles(r.Context())
	if err != nil {
		respondUsecaseError(w, err)
		return
	}
	respondOK(w, http.StatusOK, "roles fetched", toRoleResponses(roles))
}

func authenticatedUserID(r *http.Request) (primitive.ObjectID, bool) {
	raw, ok := r.Context().Value(middleware.UserIDCtxKey).(string)
	if !ok || raw == "" {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

func pathUserID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id", nil)
		return primitive.NilObjectID, false
	}
	return id, true
}

func formValue(r *http.Request, key string) *string {
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func avatarFromForm(r *http.Request) (*usecase.AvatarUpload, error) {
	file, header, err := r.FormFile("avatar")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAvatarSize {
		return nil, errAvatarTooLarge
	}
	return &usecase.AvatarUpload{FileName: header.Filename, Data: data}, nil
}
