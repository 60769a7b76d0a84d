// Package session owns the in-memory table of active launcher sessions.
// Sessions are deliberately never persisted: a restart logs everyone out,
// which is acceptable for 24h bearer tokens, and it keeps the registry a
// single mutex-guarded map. Sharing sessions across instances would mean
// moving this table to shared storage; that is an extension point, not
// something this package attempts.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// TTL is the fixed session lifetime. There is no sliding renewal;
	// after expiry the launcher has to log in again.
	TTL = 24 * time.Hour

	sweepInterval = 1 * time.Hour
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrExpired      = errors.New("session expired")
	ErrHWIDMismatch = errors.New("session hwid mismatch")
)

// Session is a live login. Nickname and HWID are snapshots taken at issue
// time; VerifySession re-reads the account for anything that must be live.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	Nickname  string    `json:"nickname"`
	HWID      string    `json:"hwid"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registry is the session table plus its background sweeper. All table
// access goes through one mutex; Verify and CountActive delete expired
// entries as they touch them, and the sweeper bounds memory when nothing
// touches the table at all.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger

	now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		now:      time.Now,
	}
}

// Issue creates a session for the user and returns its token. Tokens are
// 32 random bytes hex-encoded; at that width a collision with a live
// session is not a case worth handling.
func (r *Registry) Issue(userID int64, nickname, hwid string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	now := r.now()
	sess := &Session{
		Token:     token,
		UserID:    userID,
		Nickname:  nickname,
		HWID:      hwid,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}

	r.mu.Lock()
	r.sessions[token] = sess
	r.mu.Unlock()

	return token, nil
}

// Verify resolves a token. Checks run in a fixed order: unknown token,
// expiry (the entry is deleted on the spot), then hwid match against the
// snapshot taken at login.
func (r *Registry) Verify(token, hwid string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	if r.now().After(sess.ExpiresAt) {
		delete(r.sessions, token)
		return nil, ErrExpired
	}
	if sess.HWID != hwid {
		return nil, ErrHWIDMismatch
	}

	copy := *sess
	return &copy, nil
}

// Revoke removes a session. Revoking an unknown token is not an error.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// CountActive sweeps expired sessions and returns how many remain. Note
// this is a mutating read: the online count doubles as a lazy cleanup
// pass, same as the expiry check in Verify.
func (r *Registry) CountActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return len(r.sessions)
}

// Start launches the hourly sweep. Stop blocks until the sweeper exits.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Info("swept expired sessions", "count", n)
				}
			}
		}
	}()
}

func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// Sweep removes all expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *Registry) sweepLocked() int {
	now := r.now()
	removed := 0
	for token, sess := range r.sessions {
		if now.After(sess.ExpiresAt) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed
}
