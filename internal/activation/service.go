// Package activation redeems one-time keys for subscription grants on
// behalf of the registration bot.
package activation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/raven/internal/store"
)

var (
	ErrKeyNotFound     = errors.New("Key not found. Check it and try again.")
	ErrKeyUsed         = errors.New("This key has already been used.")
	ErrAccountNotFound = errors.New("Account not found. Register first.")
)

type Service struct {
	keys   *store.ActivationKeyStore
	logger *slog.Logger
}

func NewService(keys *store.ActivationKeyStore, logger *slog.Logger) *Service {
	return &Service{keys: keys, logger: logger}
}

// Activate redeems a key for the account and returns a human-readable
// confirmation. Keys are entered by hand, so the input is trimmed and
// upper-cased before lookup. Redemption and the subscription grant commit
// together or not at all; a second attempt on the same key fails without
// touching the account.
func (s *Service) Activate(key string, userID int64) (string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return "", ErrKeyNotFound
	}

	k, acct, err := s.keys.Redeem(key, userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrKeyNotFound):
			return "", ErrKeyNotFound
		case errors.Is(err, store.ErrKeyUsed):
			return "", ErrKeyUsed
		case errors.Is(err, store.ErrAccountNotFound):
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("redeem key: %w", err)
	}

	s.logger.Info("key activated", "user_id", userID, "key", k.Key, "plan", k.Plan, "days", k.DurationDays)

	if k.DurationDays <= 0 {
		return "Key activated: permanent access.", nil
	}
	end := ""
	if acct.SubscriptionEnd != nil {
		end = *acct.SubscriptionEnd
	}
	return fmt.Sprintf("Key activated: +%d days (until %s).", k.DurationDays, end), nil
}
