package auth

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/raven/internal/database"
	"github.com/dukerupert/raven/internal/entitlement"
	"github.com/dukerupert/raven/internal/session"
	"github.com/dukerupert/raven/internal/store"
)

func setupService(t *testing.T) (*Service, *store.AccountStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := store.NewAccountStore(db)
	svc := NewService(accounts, store.NewAuditStore(db), session.NewRegistry(logger), logger)
	return svc, accounts, db
}

// seedAccount creates a user with the given password and a subscription
// running well into the future.
func seedAccount(t *testing.T, db *sql.DB, accounts *store.AccountStore, userID int64, nickname, password string) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := accounts.Create(userID, "", nickname, hash); err != nil {
		t.Fatalf("create account: %v", err)
	}
	end := time.Now().Add(30 * 24 * time.Hour).Format(entitlement.EndLayout)
	if _, err := db.Exec(
		`UPDATE users SET subscription_type = 'standard', subscription_end = ? WHERE user_id = ?`,
		end, userID,
	); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestLoginHappyPath(t *testing.T) {
	svc, accounts, db := setupService(t)
	seedAccount(t, db, accounts, 42, "Ada", "secret1")

	res, err := svc.Login("Ada", "secret1", "ABC")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(res.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(res.Token))
	}
	if res.UserID != 42 || res.Nickname != "Ada" {
		t.Errorf("result = %+v", res)
	}
	if !res.Subscription.Active {
		t.Error("subscription should report active")
	}

	// First login bound the device.
	acct, _ := accounts.GetByID(42)
	if acct.HWID == nil || *acct.HWID != "ABC" {
		t.Errorf("hwid = %v, want ABC", acct.HWID)
	}

	var action string
	if err := db.QueryRow(`SELECT action FROM logs WHERE user_id = 42`).Scan(&action); err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if action != "LAUNCHER_LOGIN" {
		t.Errorf("audit action = %q", action)
	}
}

func TestLoginGateOrder(t *testing.T) {
	svc, accounts, db := setupService(t)
	seedAccount(t, db, accounts, 42, "Ada", "secret1")
	if _, err := db.Exec(`UPDATE users SET hwid = 'ABC', is_banned = 1, ban_reason = 'cheating' WHERE user_id = 42`); err != nil {
		t.Fatal(err)
	}

	// Wrong password on a banned, device-bound account: the credential gate
	// fires first, the caller learns nothing about the ban.
	_, err := svc.Login("Ada", "wrong", "XYZ")
	rej, ok := AsRejection(err)
	if !ok || rej.Code != CodeBadCredentials {
		t.Fatalf("err = %v, want bad_credentials", err)
	}

	// Right password: the ban gate fires before the device gate.
	_, err = svc.Login("Ada", "secret1", "XYZ")
	rej, ok = AsRejection(err)
	if !ok || rej.Code != CodeBanned {
		t.Fatalf("err = %v, want banned", err)
	}
	if rej.Message != "Account banned: cheating" {
		t.Errorf("message = %q", rej.Message)
	}

	if _, err := db.Exec(`UPDATE users SET is_banned = 0 WHERE user_id = 42`); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Login("Ada", "secret1", "XYZ")
	rej, ok = AsRejection(err)
	if !ok || rej.Code != CodeHWIDConflict {
		t.Fatalf("err = %v, want hwid_conflict", err)
	}
}

func TestLoginInputAndLookupGates(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Login("  ", "secret1", "ABC")
	if !errors.Is(err, ErrInputRequired) {
		t.Errorf("blank nickname err = %v", err)
	}
	_, err = svc.Login("Ada", "", "ABC")
	if !errors.Is(err, ErrInputRequired) {
		t.Errorf("blank password err = %v", err)
	}
	_, err = svc.Login("Nobody", "secret1", "ABC")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestLoginSameDeviceRepeats(t *testing.T) {
	svc, _, db := setupService(t)
	seedAccount(t, db, svc.accounts, 42, "Ada", "secret1")

	if _, err := svc.Login("Ada", "secret1", "ABC"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	// Nickname lookup ignores case.
	if _, err := svc.Login("ADA", "secret1", "ABC"); err != nil {
		t.Fatalf("second login from same device: %v", err)
	}
	_, err := svc.Login("Ada", "secret1", "XYZ")
	if !errors.Is(err, ErrHWIDConflict) {
		t.Errorf("other device err = %v, want hwid_conflict", err)
	}
}

func TestLoginRequiresEntitlement(t *testing.T) {
	svc, accounts, _ := setupService(t)
	hash, _ := HashPassword("secret1")
	accounts.Create(42, "", "Ada", hash)

	_, err := svc.Login("Ada", "secret1", "ABC")
	if !errors.Is(err, ErrNoEntitlement) {
		t.Errorf("err = %v, want no_entitlement", err)
	}

	// The entitlement gate runs after device binding, so the device is
	// already bound even though login failed.
	acct, _ := accounts.GetByID(42)
	if acct.HWID == nil || *acct.HWID != "ABC" {
		t.Errorf("hwid = %v, want bound ABC", acct.HWID)
	}
}

func TestVerifySessionLiveRecheck(t *testing.T) {
	svc, accounts, db := setupService(t)
	seedAccount(t, db, accounts, 42, "Ada", "secret1")

	res, err := svc.Login("Ada", "secret1", "ABC")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	v, err := svc.VerifySession(res.Token, "ABC")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.UserID != 42 {
		t.Errorf("verify user = %d", v.UserID)
	}

	// Banning the account kills the session immediately.
	if err := accounts.SetBanned(42, true, "chargeback"); err != nil {
		t.Fatal(err)
	}
	_, err = svc.VerifySession(res.Token, "ABC")
	rej, ok := AsRejection(err)
	if !ok || rej.Code != CodeBanned {
		t.Fatalf("verify after ban err = %v, want banned", err)
	}

	// So does a lapsed subscription.
	accounts.SetBanned(42, false, "")
	if _, err := db.Exec(`UPDATE users SET subscription_end = ? WHERE user_id = 42`,
		time.Now().Add(-48*time.Hour).Format(entitlement.EndLayout)); err != nil {
		t.Fatal(err)
	}
	_, err = svc.VerifySession(res.Token, "ABC")
	if !errors.Is(err, ErrSubscriptionLapsed) {
		t.Fatalf("verify after lapse err = %v", err)
	}
}

func TestVerifySessionTokenGates(t *testing.T) {
	svc, accounts, db := setupService(t)
	seedAccount(t, db, accounts, 42, "Ada", "secret1")

	_, err := svc.VerifySession("deadbeef", "ABC")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown token err = %v", err)
	}

	res, _ := svc.Login("Ada", "secret1", "ABC")
	_, err = svc.VerifySession(res.Token, "XYZ")
	if !errors.Is(err, ErrSessionHWID) {
		t.Errorf("wrong device err = %v", err)
	}
	// The mismatch did not consume the session.
	if _, err := svc.VerifySession(res.Token, "ABC"); err != nil {
		t.Errorf("verify after mismatch: %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, accounts, db := setupService(t)
	seedAccount(t, db, accounts, 42, "Ada", "secret1")

	res, _ := svc.Login("Ada", "secret1", "ABC")
	svc.Logout(res.Token)
	if _, err := svc.VerifySession(res.Token, "ABC"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("verify after logout err = %v", err)
	}
	// Revoking again, or revoking garbage, is fine.
	svc.Logout(res.Token)
	svc.Logout("not-a-token")
}
