package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/leka/craftwatch/internal/auth"
	"github.com/leka/craftwatch/internal/domain"
)

var errPlayerClaimed = errors.New("player already claimed")

// LoginRequest is the request body for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for successful login
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	PlayerID *int64 `json:"player_id,omitempty"`
}

// RegisterRequest is the request body for self-registration
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	GameName string `json:"game_name"`
}

// UserResponse is a user without the password hash
type UserResponse struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	IsAdmin    bool       `json:"is_admin"`
	IsApproved bool       `json:"is_approved"`
	GameName   string     `json:"game_name,omitempty"`
	PlayerID   *int64     `json:"player_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		IsAdmin:    u.IsAdmin,
		IsApproved: u.IsApproved,
		GameName:   u.GameName,
		PlayerID:   u.GamePlayerID,
		CreatedAt:  u.CreatedAt,
		LastLogin:  u.LastLogin,
	}
}

// handleRegister creates an account that waits for admin approval
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &domain.User{
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: hash,
		GameName:     body.GameName,
	}
	if err := r.store.CreateUser(req.Context(), user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "registered, awaiting approval",
	})
}

// handleLogin authenticates a user and returns a JWT token. Accounts
// that have not been approved yet cannot log in.
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var login LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&login); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if login.Username == "" || login.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := r.store.GetUserByUsername(req.Context(), login.Username)
	if err != nil || !auth.CheckPassword(login.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsApproved {
		writeError(w, http.StatusForbidden, "account not approved")
		return
	}

	token, err := r.auth.GenerateToken(user.ID, user.Username, user.IsAdmin, user.GamePlayerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	r.store.UpdateUserLastLogin(req.Context(), user.ID)

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:    token,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		PlayerID: user.GamePlayerID,
	})
}

// handleLogout handles logout (JWT is stateless, client just discards token)
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAuthCheck checks if the current token is valid
func (r *Router) handleAuthCheck(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)
	if claims == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"username":      claims.Username,
		"is_admin":      claims.IsAdmin,
		"player_id":     claims.PlayerID,
	})
}

// requireAuth is middleware that validates JWT before calling the handler
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims := r.getAuthClaims(req)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	}
}

// requireAdmin is middleware that validates JWT and checks admin status
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims := r.getAuthClaims(req)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, req)
	}
}

// getAuthClaims extracts and validates JWT from Authorization header
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil
	}

	claims, err := r.auth.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return nil
	}
	return claims
}

// ChangePasswordRequest is the request body for password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleChangePassword allows users to change their own password
func (r *Router) handleChangePassword(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	var body ChangePasswordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(body.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := r.store.GetUserByID(req.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	if !auth.CheckPassword(body.CurrentPassword, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(body.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := r.store.UpdateUserPassword(req.Context(), claims.UserID, hash); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// handleGetProfile returns the current user's profile with linked player info
func (r *Router) handleGetProfile(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	user, err := r.store.GetUserByID(req.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	response := map[string]interface{}{"user": toUserResponse(user)}
	if user.GamePlayerID != nil {
		if player, err := r.store.GetPlayerByID(req.Context(), *user.GamePlayerID); err == nil {
			response["player"] = player
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// UpdateProfileRequest is the request body for profile updates
type UpdateProfileRequest struct {
	GameName *string `json:"game_name,omitempty"`
	PlayerID *int64  `json:"player_id,omitempty"`
}

// handleUpdateProfile lets a user change their claimed game name or
// select their own player link.
func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	claims := r.getAuthClaims(req)

	var body UpdateProfileRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.GameName != nil {
		if err := r.store.UpdateUserGameName(req.Context(), claims.UserID, *body.GameName); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update game name")
			return
		}
	}

	if body.PlayerID != nil {
		if err := r.linkPlayer(req, claims.UserID, body.PlayerID, w); err != nil {
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "profile updated"})
}

// linkPlayer applies a player link after checking the claim is free.
// Writes the error response itself and returns non-nil when it did.
func (r *Router) linkPlayer(req *http.Request, userID int64, playerID *int64, w http.ResponseWriter) error {
	if playerID != nil && *playerID != 0 {
		claimed, err := r.store.IsPlayerClaimed(req.Context(), *playerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check player status")
			return err
		}
		if claimed {
			user, _ := r.store.GetUserByID(req.Context(), userID)
			if user == nil || user.GamePlayerID == nil || *user.GamePlayerID != *playerID {
				writeError(w, http.StatusConflict, "player is already linked to another user")
				return errPlayerClaimed
			}
		}
	} else {
		playerID = nil
	}

	if err := r.store.LinkUserPlayer(req.Context(), userID, playerID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update player link")
		return err
	}
	return nil
}

// handleListUsers returns all users (admin only)
func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	users, err := r.store.ListUsers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := make([]UserResponse, len(users))
	for i := range users {
		response[i] = toUserResponse(&users[i])
	}
	writeJSON(w, http.StatusOK, response)
}

// CreateUserRequest is the request body for creating a user (admin only)
type CreateUserRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	IsAdmin    bool   `json:"is_admin"`
	IsApproved bool   `json:"is_approved"`
	GameName   string `json:"game_name"`
}

// handleCreateUser creates a new user (admin only)
func (r *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) {
	var body CreateUserRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &domain.User{
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: hash,
		IsAdmin:      body.IsAdmin,
		IsApproved:   body.IsApproved,
		GameName:     body.GameName,
	}
	if err := r.store.CreateUser(req.Context(), user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleDeleteUser deletes a user (admin only)
func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	username := req.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}

	// Prevent self-deletion
	claims := r.getAuthClaims(req)
	if claims != nil && claims.Username == username {
		writeError(w, http.StatusForbidden, "cannot delete yourself")
		return
	}

	if err := r.store.DeleteUser(req.Context(), username); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// handleApproveUser flips a user's approval flag on (admin only)
func (r *Router) handleApproveUser(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := r.store.SetUserApproved(req.Context(), id, true); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to approve user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user approved"})
}

// handlePromoteUser grants a user admin rights (admin only)
func (r *Router) handlePromoteUser(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := r.store.SetUserAdmin(req.Context(), id, true); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to promote user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user promoted"})
}

// LinkRequest is the request body for linking a user to a player
type LinkRequest struct {
	PlayerID *int64 `json:"player_id"`
}

// handleLinkUserPlayer sets or clears a user's player link (admin only)
func (r *Router) handleLinkUserPlayer(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var body LinkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := r.linkPlayer(req, id, body.PlayerID, w); err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user updated"})
}
