package reminder

import (
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

// Offset is one entry of the fixed reminder policy: how long before the
// appointment the reminder fires, and who receives it.
type Offset struct {
	Before    time.Duration
	Recipient string
	Label     string
}

// Offsets returns the reminder policy: customers are reminded 24h and 1h
// before, the merchant 15m before.
func Offsets() []Offset {
	return []Offset{
		{Before: 24 * time.Hour, Recipient: model.RecipientCustomer, Label: "24 hours"},
		{Before: 1 * time.Hour, Recipient: model.RecipientCustomer, Label: "1 hour"},
		{Before: 15 * time.Minute, Recipient: model.RecipientMerchant, Label: "15 minutes"},
	}
}

// FireTime is a materialized offset for a concrete appointment time.
type FireTime struct {
	At        time.Time
	Recipient string
	Label     string
}

// FireTimes applies the policy to an appointment time. All entries are
// returned; the scheduler drops the ones already in the past.
func FireTimes(appointmentAt time.Time) []FireTime {
	offsets := Offsets()
	out := make([]FireTime, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, FireTime{
			At:        appointmentAt.Add(-o.Before),
			Recipient: o.Recipient,
			Label:     o.Label,
		})
	}
	return out
}

// IsDue reports whether a pending reminder is eligible for this sweep:
// scheduledFor must be in (now-lookback, now]. The boundary scheduledFor ==
// now is due; scheduledFor == now-lookback is not. The lookback window bounds
// how late a missed sweep may still fire a reminder and must stay consistent
// with the sweep cadence.
func IsDue(scheduledFor, now time.Time, lookback time.Duration) bool {
	return !scheduledFor.After(now) && scheduledFor.After(now.Add(-lookback))
}
