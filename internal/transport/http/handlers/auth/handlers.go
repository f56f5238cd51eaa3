package authhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kpitracker/internal/domain/directory"
	"kpitracker/internal/requestctx"
	"kpitracker/internal/transport/http/api"
	"kpitracker/internal/transport/http/middleware"
)

type Handler struct {
	Store    *directory.Store
	Secret   string
	TokenTTL time.Duration
}

func NewHandler(db *pgxpool.Pool, secret string, tokenTTL time.Duration) *Handler {
	return &Handler{Store: directory.NewStore(db), Secret: secret, TokenTTL: tokenTTL}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token      string `json:"token"`
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	RoleName   string `json:"roleName"`
	Supervisor bool   `json:"supervisor"`
}

// HandleLogin checks credentials and issues a token. The supervisor
// capability is resolved from the role here, once, and carried in the
// token for the rest of the session.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))

	user, err := h.Store.FindActiveUserByEmail(r.Context(), payload.Email)
	if err != nil {
		if !errors.Is(err, directory.ErrUserNotFound) {
			slog.Warn("login lookup failed", "err", err)
		}
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	}

	if err := directory.CheckPassword(user.PasswordHash, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	}

	claims := directory.Claims{
		UserID:     user.ID,
		Email:      user.Email,
		RoleID:     user.RoleID,
		RoleName:   user.RoleName,
		Supervisor: directory.IsSupervisorRole(user.RoleName),
	}
	token, err := directory.GenerateToken(h.Secret, claims, h.TokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return
	}

	if err := h.Store.UpdateLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("last login update failed", "userId", user.ID, "err", err)
	}

	api.Success(w, loginResponse{
		Token:      token,
		UserID:     user.ID,
		Email:      user.Email,
		RoleName:   user.RoleName,
		Supervisor: claims.Supervisor,
	}, requestID)
}

// HandleMe returns the authenticated caller.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	requestID := requestctx.GetRequestID(r.Context())
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	user, err := h.Store.UserByID(r.Context(), actor.UserID)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", requestID)
		return
	}
	api.Success(w, user, requestID)
}
