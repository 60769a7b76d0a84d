package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/raven/internal/auth"
	"github.com/dukerupert/raven/internal/events"
)

type AuthHandler struct {
	svc    *auth.Service
	hub    *events.Hub
	logger *slog.Logger
}

func NewAuthHandler(svc *auth.Service, hub *events.Hub, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, hub: hub, logger: logger}
}

type loginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	HWID     string `json:"hwid"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	result, err := h.svc.Login(req.Nickname, req.Password, req.HWID)
	if err != nil {
		if rej, isRej := auth.AsRejection(err); isRej {
			fail(w, rej.Message)
			return
		}
		h.logger.Error("login", "nickname", req.Nickname, "error", err)
		serverError(w)
		return
	}

	h.hub.Broadcast(events.NewEvent(events.TypeLogin, result.UserID, result.Nickname, ""))

	ok(w, map[string]any{
		"session_token": result.Token,
		"user": map[string]any{
			"user_id":      result.UserID,
			"nickname":     result.Nickname,
			"subscription": result.Subscription,
		},
	})
}

type verifyRequest struct {
	SessionToken string `json:"session_token"`
	HWID         string `json:"hwid"`
}

// VerifySession handles POST /api/auth/verify_session.
func (h *AuthHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	result, err := h.svc.VerifySession(req.SessionToken, req.HWID)
	if err != nil {
		if rej, isRej := auth.AsRejection(err); isRej {
			fail(w, rej.Message)
			return
		}
		h.logger.Error("verify session", "error", err)
		serverError(w)
		return
	}

	ok(w, map[string]any{
		"user": map[string]any{
			"user_id":      result.UserID,
			"nickname":     result.Nickname,
			"subscription": result.Subscription,
		},
	})
}

type logoutRequest struct {
	SessionToken string `json:"session_token"`
}

// Logout handles POST /api/auth/logout. Always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	h.svc.Logout(req.SessionToken)
	h.hub.Broadcast(events.NewEvent(events.TypeLogout, 0, "", ""))

	ok(w, nil)
}
