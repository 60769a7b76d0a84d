package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/dukerupert/raven/internal/activation"
	"github.com/dukerupert/raven/internal/auth"
	"github.com/dukerupert/raven/internal/entitlement"
	"github.com/dukerupert/raven/internal/events"
	"github.com/dukerupert/raven/internal/store"
)

// nicknamePattern mirrors the registration rules the bot shows the user:
// 3-16 characters, letters, digits, and underscore.
var nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

const minPasswordLen = 6

// BotHandler serves the registration collaborator: account lookups,
// registration, and key activation.
type BotHandler struct {
	accounts   *store.AccountStore
	audit      *store.AuditStore
	activation *activation.Service
	hub        *events.Hub
	logger     *slog.Logger
}

func NewBotHandler(accounts *store.AccountStore, audit *store.AuditStore, act *activation.Service, hub *events.Hub, logger *slog.Logger) *BotHandler {
	return &BotHandler{
		accounts:   accounts,
		audit:      audit,
		activation: act,
		hub:        hub,
		logger:     logger,
	}
}

// GetAccount handles GET /api/bot/accounts/{user_id}: existence, ban flag,
// and the subscription summary, all in one round trip for the bot's menus.
func (h *BotHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		badRequest(w, "Invalid user id")
		return
	}

	acct, err := h.accounts.GetByID(userID)
	if err != nil {
		h.logger.Error("get account", "user_id", userID, "error", err)
		serverError(w)
		return
	}
	if acct == nil {
		ok(w, map[string]any{"exists": false})
		return
	}

	ok(w, map[string]any{
		"exists":       true,
		"banned":       acct.IsBanned,
		"nickname":     acct.Nickname,
		"subscription": entitlement.Summarize(acct),
	})
}

type registerRequest struct {
	UserID     int64  `json:"user_id"`
	TGUsername string `json:"tg_username"`
	Nickname   string `json:"nickname"`
	Password   string `json:"password"`
}

// Register handles POST /api/bot/accounts.
func (h *BotHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	if req.UserID == 0 {
		fail(w, "User id is required.")
		return
	}
	if !nicknamePattern.MatchString(req.Nickname) {
		fail(w, "Nickname must be 3-16 characters: letters, digits, underscore.")
		return
	}
	if len(req.Password) < minPasswordLen {
		fail(w, "Password must be at least 6 characters.")
		return
	}

	existing, err := h.accounts.GetByID(req.UserID)
	if err != nil {
		h.logger.Error("register lookup", "user_id", req.UserID, "error", err)
		serverError(w)
		return
	}
	if existing != nil {
		fail(w, "You are already registered.")
		return
	}

	taken, err := h.accounts.NicknameTaken(req.Nickname)
	if err != nil {
		h.logger.Error("register nickname check", "error", err)
		serverError(w)
		return
	}
	if taken {
		fail(w, "This nickname is taken. Pick another one.")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("register hash", "error", err)
		serverError(w)
		return
	}

	acct, err := h.accounts.Create(req.UserID, req.TGUsername, req.Nickname, hash)
	if err != nil {
		h.logger.Error("register create", "user_id", req.UserID, "error", err)
		serverError(w)
		return
	}

	if err := h.audit.Append(acct.UserID, "REGISTERED", "nickname: "+acct.Nickname); err != nil {
		h.logger.Warn("audit register", "user_id", acct.UserID, "error", err)
	}

	ok(w, map[string]any{"nickname": acct.Nickname})
}

type activateRequest struct {
	Key    string `json:"key"`
	UserID int64  `json:"user_id"`
}

// Activate handles POST /api/bot/activate.
func (h *BotHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	msg, err := h.activation.Activate(req.Key, req.UserID)
	if err != nil {
		if isActivationFailure(err) {
			fail(w, err.Error())
			return
		}
		h.logger.Error("activate key", "user_id", req.UserID, "error", err)
		serverError(w)
		return
	}

	h.hub.Broadcast(events.NewEvent(events.TypeKeyActivated, req.UserID, "", ""))

	ok(w, map[string]any{"message": msg})
}

func isActivationFailure(err error) bool {
	return errors.Is(err, activation.ErrKeyNotFound) ||
		errors.Is(err, activation.ErrKeyUsed) ||
		errors.Is(err, activation.ErrAccountNotFound)
}
