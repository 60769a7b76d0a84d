package session

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(slog.Default())
}

func TestIssueAndVerify(t *testing.T) {
	r := newTestRegistry(t)

	token, err := r.Issue(42, "Ada", "HW-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(token))
	}

	sess, err := r.Verify(token, "HW-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.UserID != 42 || sess.Nickname != "Ada" || sess.HWID != "HW-1" {
		t.Errorf("session = %+v, want snapshot of issue args", sess)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != TTL {
		t.Errorf("ttl = %v, want %v", got, TTL)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Verify("nope", "HW-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestVerifyHWIDMismatch(t *testing.T) {
	r := newTestRegistry(t)

	token, _ := r.Issue(42, "Ada", "HW-1")
	if _, err := r.Verify(token, "HW-2"); !errors.Is(err, ErrHWIDMismatch) {
		t.Errorf("err = %v, want ErrHWIDMismatch", err)
	}
	// Mismatch must not consume the session.
	if _, err := r.Verify(token, "HW-1"); err != nil {
		t.Errorf("verify with correct hwid after mismatch: %v", err)
	}
}

func TestVerifyExpiredDeletes(t *testing.T) {
	r := newTestRegistry(t)

	token, _ := r.Issue(42, "Ada", "HW-1")

	// Move the clock past expiry.
	r.now = func() time.Time { return time.Now().Add(TTL + time.Second) }

	if _, err := r.Verify(token, "HW-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	// Expired entry was deleted, so a second verify is NotFound.
	if _, err := r.Verify(token, "HW-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second verify err = %v, want ErrNotFound", err)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	token, _ := r.Issue(42, "Ada", "HW-1")
	r.Revoke(token)
	r.Revoke(token)
	r.Revoke("never-existed")

	if _, err := r.Verify(token, "HW-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("verify after revoke err = %v, want ErrNotFound", err)
	}
}

func TestCountActiveSweeps(t *testing.T) {
	r := newTestRegistry(t)

	r.Issue(1, "a", "hw")
	r.Issue(2, "b", "hw")
	if got := r.CountActive(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	r.now = func() time.Time { return time.Now().Add(TTL + time.Second) }
	if got := r.CountActive(); got != 0 {
		t.Errorf("count after expiry = %d, want 0", got)
	}
	// The sweep removed them for real, not just from the count.
	r.now = time.Now
	if got := r.CountActive(); got != 0 {
		t.Errorf("count after clock reset = %d, want 0", got)
	}
}

func TestSweep(t *testing.T) {
	r := newTestRegistry(t)

	r.Issue(1, "a", "hw")
	tok, _ := r.Issue(2, "b", "hw")

	// Expire only the first by back-dating it.
	r.mu.Lock()
	for t2, s := range r.sessions {
		if t2 != tok {
			s.ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
	r.mu.Unlock()

	if n := r.Sweep(); n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if got := r.CountActive(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}
