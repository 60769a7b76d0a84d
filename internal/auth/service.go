// Package auth orchestrates the login gate sequence, session verification,
// and logout for the launcher.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/raven/internal/entitlement"
	"github.com/dukerupert/raven/internal/session"
	"github.com/dukerupert/raven/internal/store"
)

type Service struct {
	accounts *store.AccountStore
	audit    *store.AuditStore
	sessions *session.Registry
	logger   *slog.Logger
}

func NewService(accounts *store.AccountStore, audit *store.AuditStore, sessions *session.Registry, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		audit:    audit,
		sessions: sessions,
		logger:   logger,
	}
}

type LoginResult struct {
	Token        string
	UserID       int64
	Nickname     string
	Subscription entitlement.Summary
}

type VerifyResult struct {
	UserID       int64
	Nickname     string
	Subscription entitlement.Summary
}

// Login runs the gate sequence in a fixed order; the first failing gate
// decides which message the launcher shows. Binding the device fingerprint
// (when the account has none yet) is the only account mutation on this
// path.
func (s *Service) Login(nickname, password, hwid string) (*LoginResult, error) {
	nickname = strings.TrimSpace(nickname)
	password = strings.TrimSpace(password)
	hwid = strings.TrimSpace(hwid)

	if nickname == "" || password == "" {
		return nil, ErrInputRequired
	}

	acct, err := s.accounts.GetByNickname(nickname)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}

	if acct.IsBanned {
		reason := ""
		if acct.BanReason != nil {
			reason = *acct.BanReason
		}
		return nil, Banned(reason)
	}

	if acct.HWID != nil && *acct.HWID != hwid {
		return nil, ErrHWIDConflict
	}

	if acct.HWID == nil && hwid != "" {
		bound, err := s.accounts.BindHWID(acct.UserID, hwid)
		if err != nil {
			return nil, fmt.Errorf("bind hwid: %w", err)
		}
		if !bound {
			// Lost a first-login race. Re-read: if the winner bound the
			// same device we are still fine, otherwise reject.
			fresh, err := s.accounts.GetByID(acct.UserID)
			if err != nil {
				return nil, fmt.Errorf("reread account: %w", err)
			}
			if fresh == nil || fresh.HWID == nil || *fresh.HWID != hwid {
				return nil, ErrHWIDConflict
			}
			acct = fresh
		} else {
			s.logger.Info("hwid bound", "user_id", acct.UserID, "hwid", truncateHWID(hwid))
		}
	}

	if !entitlement.Entitled(acct) {
		return nil, ErrNoEntitlement
	}

	token, err := s.sessions.Issue(acct.UserID, acct.Nickname, hwid)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	if err := s.audit.Append(acct.UserID, "LAUNCHER_LOGIN", "HWID: "+truncateHWID(hwid)); err != nil {
		// The login already succeeded; losing one audit row is not worth
		// failing it for.
		s.logger.Warn("audit login", "user_id", acct.UserID, "error", err)
	}

	s.logger.Info("login ok", "user_id", acct.UserID, "nickname", acct.Nickname)

	return &LoginResult{
		Token:        token,
		UserID:       acct.UserID,
		Nickname:     acct.Nickname,
		Subscription: entitlement.Summarize(acct),
	}, nil
}

// VerifySession resolves the token against the registry, then re-checks the
// live account: a ban or a lapsed subscription invalidates the session
// immediately, regardless of its remaining TTL.
func (s *Service) VerifySession(token, hwid string) (*VerifyResult, error) {
	sess, err := s.sessions.Verify(token, hwid)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, session.ErrExpired):
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrHWIDMismatch):
			return nil, ErrSessionHWID
		}
		return nil, fmt.Errorf("verify session: %w", err)
	}

	acct, err := s.accounts.GetByID(sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if acct.IsBanned {
		reason := ""
		if acct.BanReason != nil {
			reason = *acct.BanReason
		}
		return nil, Banned(reason)
	}
	if !entitlement.Entitled(acct) {
		return nil, ErrSubscriptionLapsed
	}

	return &VerifyResult{
		UserID:       acct.UserID,
		Nickname:     acct.Nickname,
		Subscription: entitlement.Summarize(acct),
	}, nil
}

// Logout revokes the token. Always succeeds, including for tokens that
// never existed.
func (s *Service) Logout(token string) {
	s.sessions.Revoke(token)
}

// HashPassword produces the stored credential hash for registration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func truncateHWID(hwid string) string {
	if len(hwid) > 16 {
		return hwid[:16] + "..."
	}
	return hwid
}
