package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// UsersHandler handles user management endpoints.
type UsersHandler struct {
	DB *sqlx.DB
}

type createUserRequest struct {
	Username   string     `json:"username" validate:"required"`
	Password   string     `json:"password" validate:"required"`
	Role       model.Role `json:"role" validate:"required"`
	Department string     `json:"department"`
}

type updateUserRequest struct {
	Role       model.Role `json:"role" validate:"required"`
	Department string     `json:"department"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// canAssign reports whether actor may hand out role. Only a superadmin
// creates other superadmins.
func canAssign(actor model.Actor, role model.Role) bool {
	return role != model.RoleSuperadmin || actor.Role == model.RoleSuperadmin
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}
	actor := actorFrom(r)
	if !canAssign(actor, req.Role) {
		jsonError(w, http.StatusForbidden, "only a superadmin can create superadmins")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, strings.TrimSpace(req.Username), string(hash), req.Role, strings.TrimSpace(req.Department))
	if err != nil {
		storeError(w, r, err, "create user")
		return
	}

	slog.Info("user created", "user", actor.Username, "new_user", user.Username, "role", user.Role, "department", user.Department)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}
	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get user")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if !canAssign(actor, req.Role) {
		jsonError(w, http.StatusForbidden, "only a superadmin can grant superadmin")
		return
	}

	if err := store.UpdateUser(r.Context(), h.DB, id, req.Role, strings.TrimSpace(req.Department)); err != nil {
		storeError(w, r, err, "update user")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get user")
		return
	}
	slog.Info("user updated", "user", actor.Username, "target_user", user.Username, "new_role", user.Role, "department", user.Department)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	var req resetPasswordRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, id, string(hash)); err != nil {
		storeError(w, r, err, "reset password")
		return
	}

	slog.Info("user password reset", "user", actorFrom(r).Username, "target_user", targetName(r, h.DB, id))
	jsonMessage(w, "password reset")
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	actor := actorFrom(r)
	if actor.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	name := targetName(r, h.DB, id)
	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		storeError(w, r, err, "delete user")
		return
	}

	slog.Info("user deleted", "user", actor.Username, "deleted_user", name)
	jsonMessage(w, "user deleted")
}

func targetName(r *http.Request, db *sqlx.DB, id int64) string {
	if u, err := store.GetUser(r.Context(), db, id); err == nil {
		return u.Username
	}
	return fmt.Sprintf("id:%d", id)
}
