package model

import "time"

// Account is a registered launcher user. Registration happens through the
// Telegram bot, so UserID is the Telegram user id and is supplied by the
// caller rather than generated here.
type Account struct {
	UserID           int64     `json:"user_id"`
	TGUsername       *string   `json:"tg_username"`
	Nickname         string    `json:"nickname"`
	PasswordHash     string    `json:"-"`
	HWID             *string   `json:"hwid"`
	IsBanned         bool      `json:"is_banned"`
	BanReason        *string   `json:"ban_reason"`
	SubscriptionType *string   `json:"subscription_type"`
	SubscriptionEnd  *string   `json:"subscription_end"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// ActivationKey grants a subscription term when redeemed. A key is
// single-use: UsedBy/UsedAt are set exactly once, in the same transaction
// that writes the grant to the account.
type ActivationKey struct {
	ID           int64      `json:"id"`
	Key          string     `json:"key"`
	Plan         string     `json:"plan"`
	DurationDays int        `json:"duration_days"` // 0 means a forever grant
	UsedBy       *int64     `json:"used_by"`
	UsedAt       *time.Time `json:"used_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AuditEntry is an append-only log record. Written on login, registration,
// and key activation; never read by the service itself.
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
