package pos

import (
	"testing"
	"time"
)

func TestEvaluateAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name         string
		snapshot     AccountSnapshot
		wantVerdict  string
		wantRedirect string
	}{
		{
			name:        "active subscription",
			snapshot:    AccountSnapshot{Role: RoleBusinessUser, SubscriptionEndsAt: &future},
			wantVerdict: AccessAllowed,
		},
		{
			name:        "no subscription end means never expires",
			snapshot:    AccountSnapshot{Role: RoleBusinessUser},
			wantVerdict: AccessAllowed,
		},
		{
			name:         "expired subscription",
			snapshot:     AccountSnapshot{Role: RoleBusinessUser, SubscriptionEndsAt: &past},
			wantVerdict:  AccessSubscriptionExpired,
			wantRedirect: RedirectSubscriptionExpired,
		},
		{
			name:         "end date exactly now counts as expired",
			snapshot:     AccountSnapshot{Role: RoleBusinessUser, SubscriptionEndsAt: &now},
			wantVerdict:  AccessSubscriptionExpired,
			wantRedirect: RedirectSubscriptionExpired,
		},
		{
			name:         "suspended",
			snapshot:     AccountSnapshot{Role: RoleBusinessUser, IsSuspended: true, SubscriptionEndsAt: &future},
			wantVerdict:  AccessSuspended,
			wantRedirect: RedirectSuspended,
		},
		{
			name:         "suspension wins over expiry",
			snapshot:     AccountSnapshot{Role: RoleBusinessUser, IsSuspended: true, SubscriptionEndsAt: &past},
			wantVerdict:  AccessSuspended,
			wantRedirect: RedirectSuspended,
		},
		{
			name:        "super admin bypasses suspension",
			snapshot:    AccountSnapshot{Role: RoleSuperAdmin, IsSuspended: true},
			wantVerdict: AccessAllowed,
		},
		{
			name:        "super admin bypasses expiry",
			snapshot:    AccountSnapshot{Role: RoleSuperAdmin, SubscriptionEndsAt: &past},
			wantVerdict: AccessAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := EvaluateAccess(tt.snapshot, now)
			if decision.Verdict != tt.wantVerdict {
				t.Errorf("verdict = %q, want %q", decision.Verdict, tt.wantVerdict)
			}
			if decision.Redirect != tt.wantRedirect {
				t.Errorf("redirect = %q, want %q", decision.Redirect, tt.wantRedirect)
			}
			if decision.Allowed != (tt.wantVerdict == AccessAllowed) {
				t.Errorf("allowed = %v inconsistent with verdict %q", decision.Allowed, decision.Verdict)
			}
		})
	}
}

func TestEvaluateAccessSuspensionMessage(t *testing.T) {
	decision := EvaluateAccess(AccountSnapshot{
		Role:              RoleBusinessUser,
		IsSuspended:       true,
		SuspensionMessage: "Payment overdue",
	}, time.Now())

	if decision.Message != "Payment overdue" {
		t.Errorf("message = %q, want custom suspension message", decision.Message)
	}

	decision = EvaluateAccess(AccountSnapshot{Role: RoleBusinessUser, IsSuspended: true}, time.Now())
	if decision.Message == "" {
		t.Error("expected default suspension message, got empty string")
	}
}
