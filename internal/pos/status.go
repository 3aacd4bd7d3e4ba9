// Package pos holds the business rules that both the HTTP layer and the
// terminal enforcement agent share: account access policy, retention
// sweeping, and dashboard aggregation.
package pos

import (
	"time"
)

const (
	RoleSuperAdmin   = "super_admin"
	RoleBusinessUser = "business_user"
)

// Access verdicts. Exactly one applies to an account at any moment;
// suspension takes precedence over an expired subscription.
const (
	AccessAllowed             = "allowed"
	AccessSuspended           = "suspended"
	AccessSubscriptionExpired = "subscription_expired"
)

// Redirect targets keyed by verdict. The blocking screens are terminal
// destinations; the enforcement agent sends kicked devices to the login
// route instead.
const (
	RedirectSuspended           = "/suspended"
	RedirectSubscriptionExpired = "/subscription-expired"
	RedirectDeviceKicked        = "/login?reason=device_limit_exceeded"
)

// AccessDecision is the outcome of evaluating one account snapshot.
type AccessDecision struct {
	Verdict  string `json:"verdict"`
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AccountSnapshot carries the fields the policy depends on. A nil
// SubscriptionEndsAt means the subscription never expires.
type AccountSnapshot struct {
	Role               string
	IsSuspended        bool
	SuspensionMessage  string
	SubscriptionEndsAt *time.Time
}

// EvaluateAccess is the single access policy for the whole system. Both the
// server middleware gate and the client-side gate call it, so a rule change
// here changes both at once. Super admins are never blocked. Suspension is
// checked before expiry so a suspended account with a lapsed subscription
// lands on the suspension screen.
func EvaluateAccess(snapshot AccountSnapshot, now time.Time) AccessDecision {
	if snapshot.Role == RoleSuperAdmin {
		return AccessDecision{Verdict: AccessAllowed, Allowed: true}
	}

	if snapshot.IsSuspended {
		message := snapshot.SuspensionMessage
		if message == "" {
			message = "Your account has been suspended. Please contact support."
		}
		return AccessDecision{
			Verdict:  AccessSuspended,
			Redirect: RedirectSuspended,
			Message:  message,
		}
	}

	if snapshot.SubscriptionEndsAt != nil && !snapshot.SubscriptionEndsAt.After(now) {
		return AccessDecision{
			Verdict:  AccessSubscriptionExpired,
			Redirect: RedirectSubscriptionExpired,
			Message:  "Your subscription has ended. Please renew to continue.",
		}
	}

	return AccessDecision{Verdict: AccessAllowed, Allowed: true}
}
