// Package access decides whether a resolved member may enter. Decide is a
// pure function over member, subscription, and attendance state; it never
// touches storage, so the check-in flow stays side-effect free until the
// attendance record is written.
package access

import (
	"time"

	"github.com/gymgate/gymgate/internal/database"
)

// DenialReason is the machine-readable code for a refused check-in.
type DenialReason string

const (
	ReasonInactiveClient      DenialReason = "inactive_client"
	ReasonNoSubscription      DenialReason = "no_subscription"
	ReasonSubscriptionExpired DenialReason = "subscription_expired"
	ReasonAlreadyCheckedIn    DenialReason = "already_checked_in"
)

// Verdict is the outcome of an access decision.
type Verdict struct {
	Admitted bool
	Reason   DenialReason // set only when Admitted is false
}

// Admit is the verdict for a permitted check-in.
var Admit = Verdict{Admitted: true}

// Deny builds a refusal verdict with the given reason.
func Deny(reason DenialReason) Verdict {
	return Verdict{Reason: reason}
}

// Decide evaluates the admission checks in a fixed priority order; the
// first failing check wins regardless of the ones after it. An inactive
// member is always denied as inactive_client even if their subscription is
// also expired. Non-active subscription statuses (pending_payment,
// scheduled, canceled) share the subscription_expired reason: the member
// has no currently usable plan.
func Decide(member *database.Member, sub *database.Subscription, hasAttendanceToday bool, today time.Time) Verdict {
	if member == nil || !member.Active {
		return Deny(ReasonInactiveClient)
	}
	if sub == nil {
		return Deny(ReasonNoSubscription)
	}
	if sub.Status == database.SubscriptionExpired || beforeDay(sub.EndDate, today) {
		return Deny(ReasonSubscriptionExpired)
	}
	if sub.Status != database.SubscriptionActive {
		return Deny(ReasonSubscriptionExpired)
	}
	if hasAttendanceToday {
		return Deny(ReasonAlreadyCheckedIn)
	}
	return Admit
}

// beforeDay reports whether d falls on a calendar day before ref.
func beforeDay(d, ref time.Time) bool {
	dy, dm, dd := d.UTC().Date()
	ry, rm, rd := ref.UTC().Date()
	if dy != ry {
		return dy < ry
	}
	if dm != rm {
		return dm < rm
	}
	return dd < rd
}
