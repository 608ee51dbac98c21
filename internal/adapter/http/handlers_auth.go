package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/user"
	"github.com/atriumlabs/atrium/internal/middleware"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login exchanges credentials for an access/refresh token pair. Every
// rejection reads as invalid credentials so callers cannot probe for
// registered emails or locked accounts.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r)
	if !ok {
		return
	}
	resp, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeDomainError(w, err, "")
			return
		}
		slog.DebugContext(r.Context(), "login rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Refresh rotates a refresh token atomically. A token that was already
// rotated away is rejected and stays revoked, so a replay cannot mint new
// credentials.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[refreshRequest](w, r)
	if !ok {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	resp, err := h.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		slog.DebugContext(r.Context(), "refresh rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Logout revokes the presented refresh token. The body is optional; logging
// out twice, or with an already-revoked token, still succeeds.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken != "" {
		if err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
			writeDomainError(w, err, "")
			return
		}
	}
	writeMessage(w, http.StatusOK, "logged out")
}

// Me returns the authenticated user, re-read from storage so flags like
// must_change_password reflect the current state rather than the token.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	fresh, err := h.Auth.GetUser(r.Context(), u.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeDomainError(w, err, "")
		return
	}
	writeData(w, http.StatusOK, fresh)
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	req, ok := readJSON[changePasswordRequest](w, r)
	if !ok {
		return
	}
	if err := h.Auth.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		writeDomainError(w, err, "")
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}
