package auth

import "errors"

// Rejection codes. Every business-rule failure carries one of these; the
// HTTP layer uses the presence of a Rejection (not the code) to decide
// between a 200 failure envelope and a 500.
const (
	CodeInputInvalid    = "input_invalid"
	CodeAccountNotFound = "account_not_found"
	CodeBadCredentials  = "bad_credentials"
	CodeBanned          = "banned"
	CodeHWIDConflict    = "hwid_conflict"
	CodeNoEntitlement   = "no_entitlement"
	CodeSessionNotFound = "session_not_found"
	CodeSessionExpired  = "session_expired"
)

// Rejection is a terminal login/verify outcome that is the caller's fault,
// not the service's. Its message is shown to the end user as-is.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string { return r.Message }

var (
	ErrInputRequired      = &Rejection{CodeInputInvalid, "Nickname and password are required."}
	ErrAccountNotFound    = &Rejection{CodeAccountNotFound, "User not found. Register in the Telegram bot first."}
	ErrBadCredentials     = &Rejection{CodeBadCredentials, "Wrong password."}
	ErrHWIDConflict       = &Rejection{CodeHWIDConflict, "Account is bound to another device."}
	ErrNoEntitlement      = &Rejection{CodeNoEntitlement, "No active subscription. Buy one or activate a key in the bot."}
	ErrSessionNotFound    = &Rejection{CodeSessionNotFound, "Session not found."}
	ErrSessionExpired     = &Rejection{CodeSessionExpired, "Session expired."}
	ErrSessionHWID        = &Rejection{CodeHWIDConflict, "Session is bound to another device."}
	ErrSubscriptionLapsed = &Rejection{CodeNoEntitlement, "Subscription expired."}
)

// Banned builds the rejection for a banned account, carrying the stored
// reason or a default when none was recorded.
func Banned(reason string) *Rejection {
	if reason == "" {
		reason = "no reason given"
	}
	return &Rejection{CodeBanned, "Account banned: " + reason}
}

// AsRejection unwraps err to a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
