// Package entitlement computes whether an account currently has usable
// access from its subscription columns. It is pure: no store access, no
// clock other than the one passed in by the At variants.
package entitlement

import (
	"math"
	"time"

	"github.com/dukerupert/raven/internal/model"
)

// Forever is the sentinel stored in subscription_type or subscription_end
// for accounts with no expiry.
const Forever = "forever"

// EndLayout is the timestamp format written to subscription_end. Matches
// the bot's isoformat timestamps so both writers stay interchangeable.
const EndLayout = "2006-01-02T15:04:05"

// Layouts accepted when parsing subscription_end. Older rows may carry a
// space separator or a bare date.
var endLayouts = []string{
	EndLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Summary describes an account's subscription for API responses.
// DaysLeft is -1 for forever grants.
type Summary struct {
	Active   bool    `json:"active"`
	Type     *string `json:"type"`
	DaysLeft int     `json:"days_left"`
	EndDate  *string `json:"end_date,omitempty"`
}

// Entitled reports whether the account has usable access right now.
func Entitled(a *model.Account) bool {
	return EntitledAt(a, time.Now())
}

// EntitledAt is Entitled against an explicit clock.
//
// A timed subscription is entitled only while its end is strictly in the
// future. Summarize instead counts the final partial day as active; the two
// call sites disagree at the exact expiry instant and that asymmetry is
// kept (see the boundary tests).
func EntitledAt(a *model.Account, now time.Time) bool {
	if a.SubscriptionEnd == nil || *a.SubscriptionEnd == "" {
		return false
	}
	if a.SubscriptionType != nil && *a.SubscriptionType == Forever {
		return true
	}
	if *a.SubscriptionEnd == Forever {
		return true
	}
	end, ok := ParseEnd(*a.SubscriptionEnd)
	if !ok {
		// Malformed timestamp: deny rather than fail.
		return false
	}
	return end.After(now)
}

// Summarize returns the subscription summary for the account right now.
func Summarize(a *model.Account) Summary {
	return SummarizeAt(a, time.Now())
}

// SummarizeAt is Summarize against an explicit clock.
func SummarizeAt(a *model.Account, now time.Time) Summary {
	if a.SubscriptionEnd == nil || *a.SubscriptionEnd == "" {
		return Summary{Active: false, Type: nil, DaysLeft: 0}
	}
	if (a.SubscriptionType != nil && *a.SubscriptionType == Forever) || *a.SubscriptionEnd == Forever {
		t := Forever
		return Summary{Active: true, Type: &t, DaysLeft: -1}
	}
	end, ok := ParseEnd(*a.SubscriptionEnd)
	if !ok {
		return Summary{Active: false, Type: nil, DaysLeft: 0}
	}

	// Whole days, floored: an end 1 second from now is day 0 and still
	// counts as active.
	days := int(math.Floor(end.Sub(now).Hours() / 24))

	daysLeft := days
	if daysLeft < 0 {
		daysLeft = 0
	}
	return Summary{
		Active:   days >= 0,
		Type:     a.SubscriptionType,
		DaysLeft: daysLeft,
		EndDate:  a.SubscriptionEnd,
	}
}

// ParseEnd parses a subscription_end timestamp in any accepted layout.
func ParseEnd(s string) (time.Time, bool) {
	for _, layout := range endLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
