package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/raven/internal/entitlement"
	"github.com/dukerupert/raven/internal/model"
)

var (
	ErrKeyNotFound     = errors.New("activation key not found")
	ErrKeyUsed         = errors.New("activation key already used")
	ErrAccountNotFound = errors.New("account not found")
)

type ActivationKeyStore struct {
	db *sql.DB
}

func NewActivationKeyStore(db *sql.DB) *ActivationKeyStore {
	return &ActivationKeyStore{db: db}
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func scanActivationKey(scanner interface{ Scan(...any) error }) (*model.ActivationKey, error) {
	var k model.ActivationKey
	var usedBy sql.NullInt64
	var usedAt sql.NullTime
	err := scanner.Scan(
		&k.ID, &k.Key, &k.Plan, &k.DurationDays, &usedBy, &usedAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if usedBy.Valid {
		k.UsedBy = &usedBy.Int64
	}
	if usedAt.Valid {
		k.UsedAt = &usedAt.Time
	}
	return &k, nil
}

const activationKeyCols = `id, key, plan, duration_days, used_by, used_at, created_at`

// generateKey creates an activation key in the format RAVEN-XXXX-XXXX-XXXX.
func generateKey() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	h := strings.ToUpper(hex.EncodeToString(b))
	return fmt.Sprintf("RAVEN-%s-%s-%s", h[0:4], h[4:8], h[8:12]), nil
}

// Create mints a new unredeemed key. durationDays 0 means a forever grant.
func (s *ActivationKeyStore) Create(plan string, durationDays int) (*model.ActivationKey, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO activation_keys (key, plan, duration_days) VALUES (?, ?, ?)`,
		key, plan, durationDays,
	)
	if err != nil {
		return nil, fmt.Errorf("insert activation key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.getByID(s.db, id)
}

func (s *ActivationKeyStore) getByID(q querier, id int64) (*model.ActivationKey, error) {
	row := q.QueryRow(`SELECT `+activationKeyCols+` FROM activation_keys WHERE id = ?`, id)
	k, err := scanActivationKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activation key: %w", err)
	}
	return k, nil
}

func (s *ActivationKeyStore) GetByKey(key string) (*model.ActivationKey, error) {
	row := s.db.QueryRow(`SELECT `+activationKeyCols+` FROM activation_keys WHERE key = ?`, key)
	k, err := scanActivationKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activation key by key: %w", err)
	}
	return k, nil
}

// Redeem consumes the key for the given account and writes the subscription
// grant, all in one transaction: either the key is marked used and the
// account term updated together, or neither happens.
//
// A duration key extends from whichever is later, now or the current paid
// through date, so stacking keys never loses time. A forever key sets the
// sentinel. Accounts already on a forever grant keep it; the key is still
// consumed.
func (s *ActivationKeyStore) Redeem(key string, userID int64) (*model.ActivationKey, *model.Account, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin redeem: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+activationKeyCols+` FROM activation_keys WHERE key = ?`, key)
	k, err := scanActivationKey(row)
	if err == sql.ErrNoRows {
		return nil, nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get activation key: %w", err)
	}
	if k.UsedBy != nil {
		return nil, nil, ErrKeyUsed
	}

	row = tx.QueryRow(`SELECT `+accountCols+` FROM users WHERE user_id = ?`, userID)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get account: %w", err)
	}

	now := time.Now()
	newType, newEnd := grantTerms(k, acct, now)

	if _, err := tx.Exec(
		`UPDATE users SET subscription_type = ?, subscription_end = ? WHERE user_id = ?`,
		newType, newEnd, userID,
	); err != nil {
		return nil, nil, fmt.Errorf("apply grant: %w", err)
	}

	// Guard against a concurrent redeem of the same key that slipped in
	// between our read and this write.
	result, err := tx.Exec(
		`UPDATE activation_keys SET used_by = ?, used_at = datetime('now') WHERE id = ? AND used_by IS NULL`,
		userID, k.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("mark key used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil, ErrKeyUsed
	}

	if _, err := tx.Exec(
		`INSERT INTO logs (user_id, action, details) VALUES (?, 'KEY_ACTIVATED', ?)`,
		userID, k.Key,
	); err != nil {
		return nil, nil, fmt.Errorf("log activation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit redeem: %w", err)
	}

	updatedKey, err := s.getByID(s.db, k.ID)
	if err != nil {
		return nil, nil, err
	}
	acct.SubscriptionType = &newType
	acct.SubscriptionEnd = &newEnd
	return updatedKey, acct, nil
}

// grantTerms computes the subscription columns after redeeming k.
func grantTerms(k *model.ActivationKey, acct *model.Account, now time.Time) (subType, subEnd string) {
	forever := (acct.SubscriptionType != nil && *acct.SubscriptionType == entitlement.Forever) ||
		(acct.SubscriptionEnd != nil && *acct.SubscriptionEnd == entitlement.Forever)
	if forever {
		return entitlement.Forever, entitlement.Forever
	}
	if k.DurationDays <= 0 {
		return entitlement.Forever, entitlement.Forever
	}

	base := now
	if acct.SubscriptionEnd != nil {
		if end, ok := entitlement.ParseEnd(*acct.SubscriptionEnd); ok && end.After(now) {
			base = end
		}
	}
	end := base.Add(time.Duration(k.DurationDays) * 24 * time.Hour)
	return k.Plan, end.Format(entitlement.EndLayout)
}
