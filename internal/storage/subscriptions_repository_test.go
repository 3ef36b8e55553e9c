package storage

import (
	"testing"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

// An expired subscription must remain cancellable: merchants close lapsed
// accounts, and provider-side deletions arrive after expiry too. Only
// cancelled is terminal.
func TestCancellableStatuses(t *testing.T) {
	want := map[string]bool{
		model.SubscriptionActive:        true,
		model.SubscriptionExpired:       true,
		model.SubscriptionPaymentFailed: true,
		model.SubscriptionCancelled:     false,
	}

	got := make(map[string]bool, len(cancellableStatuses))
	for _, s := range cancellableStatuses {
		got[s] = true
	}
	for status, cancellable := range want {
		if got[status] != cancellable {
			t.Fatalf("status %q: cancellable = %v, want %v", status, got[status], cancellable)
		}
	}
}
