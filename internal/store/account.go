package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/raven/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var tgUsername, hwid, banReason, subType, subEnd sql.NullString
	var banned int
	err := scanner.Scan(
		&a.UserID, &tgUsername, &a.Nickname, &a.PasswordHash, &hwid,
		&banned, &banReason, &subType, &subEnd, &a.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	a.IsBanned = banned != 0
	if tgUsername.Valid {
		a.TGUsername = &tgUsername.String
	}
	if hwid.Valid {
		a.HWID = &hwid.String
	}
	if banReason.Valid {
		a.BanReason = &banReason.String
	}
	if subType.Valid {
		a.SubscriptionType = &subType.String
	}
	if subEnd.Valid {
		a.SubscriptionEnd = &subEnd.String
	}
	return &a, nil
}

const accountCols = `user_id, tg_username, nickname, password_hash, hwid, is_banned, ban_reason, subscription_type, subscription_end, registered_at`

// Create inserts a new account. UserID comes from the registration
// collaborator and must be unique; nickname uniqueness is case-insensitive
// and enforced by the schema.
func (s *AccountStore) Create(userID int64, tgUsername, nickname, passwordHash string) (*model.Account, error) {
	var tg any
	if tgUsername != "" {
		tg = tgUsername
	}
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, tg_username, nickname, password_hash) VALUES (?, ?, ?, ?)`,
		userID, tg, nickname, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetByID(userID)
}

func (s *AccountStore) GetByID(userID int64) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM users WHERE user_id = ?`, userID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetByNickname looks an account up by login name, case-insensitively.
func (s *AccountStore) GetByNickname(nickname string) (*model.Account, error) {
	row := s.db.QueryRow(
		`SELECT `+accountCols+` FROM users WHERE LOWER(nickname) = LOWER(?)`,
		nickname,
	)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by nickname: %w", err)
	}
	return a, nil
}

// NicknameTaken reports whether a nickname is already in use, ignoring case.
func (s *AccountStore) NicknameTaken(nickname string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM users WHERE LOWER(nickname) = LOWER(?)`,
		nickname,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check nickname: %w", err)
	}
	return true, nil
}

// BindHWID binds a device fingerprint to the account, but only if none is
// bound yet. Returns false when the row already carries a hwid, which lets
// the loser of a concurrent first-login race be rejected instead of
// silently overwriting the winner's binding.
func (s *AccountStore) BindHWID(userID int64, hwid string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE users SET hwid = ? WHERE user_id = ? AND hwid IS NULL`,
		hwid, userID,
	)
	if err != nil {
		return false, fmt.Errorf("bind hwid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SetBanned flags or unflags an account. Reason is ignored when unbanning.
func (s *AccountStore) SetBanned(userID int64, banned bool, reason string) error {
	var r any
	if banned && reason != "" {
		r = reason
	}
	flag := 0
	if banned {
		flag = 1
	}
	_, err := s.db.Exec(
		`UPDATE users SET is_banned = ?, ban_reason = ? WHERE user_id = ?`,
		flag, r, userID,
	)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}
