package booking

import (
	"fmt"
	"testing"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

func seqID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("slot-%d", n)
	}
}

func TestBuildSlotsSingleDay(t *testing.T) {
	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	slots, err := BuildSlots("m-1", day, day, SlotWindow{StartHour: 9, EndHour: 17, SlotMinutes: 30}, seqID())
	if err != nil {
		t.Fatalf("BuildSlots: %v", err)
	}
	// 8 working hours at 30 minutes each.
	if len(slots) != 16 {
		t.Fatalf("len = %d, want 16", len(slots))
	}
	first, last := slots[0], slots[len(slots)-1]
	if first.StartTime != "09:00" || first.EndTime != "09:30" {
		t.Errorf("first slot %s-%s, want 09:00-09:30", first.StartTime, first.EndTime)
	}
	if last.StartTime != "16:30" || last.EndTime != "17:00" {
		t.Errorf("last slot %s-%s, want 16:30-17:00", last.StartTime, last.EndTime)
	}
	for _, s := range slots {
		if !s.IsAvailable || s.MerchantID != "m-1" || !s.Date.Equal(day) {
			t.Fatalf("bad slot: %+v", s)
		}
	}
}

func TestBuildSlotsDropsTrailingPartial(t *testing.T) {
	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	// 9:00-10:00 with 45-minute slots: only one whole slot fits.
	slots, err := BuildSlots("m-1", day, day, SlotWindow{StartHour: 9, EndHour: 10, SlotMinutes: 45}, seqID())
	if err != nil {
		t.Fatalf("BuildSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("len = %d, want 1", len(slots))
	}
}

func TestBuildSlotsMultiDay(t *testing.T) {
	from := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)
	slots, err := BuildSlots("m-1", from, to, SlotWindow{StartHour: 10, EndHour: 18, SlotMinutes: 60}, seqID())
	if err != nil {
		t.Fatalf("BuildSlots: %v", err)
	}
	if len(slots) != 7*8 {
		t.Fatalf("len = %d, want 56", len(slots))
	}
	days := make(map[time.Time]int)
	for _, s := range slots {
		days[s.Date]++
	}
	if len(days) != 7 {
		t.Fatalf("distinct days = %d, want 7", len(days))
	}
}

func TestBuildSlotsRejectsBadWindows(t *testing.T) {
	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	bad := []SlotWindow{
		{StartHour: 17, EndHour: 9, SlotMinutes: 30},
		{StartHour: -1, EndHour: 10, SlotMinutes: 30},
		{StartHour: 9, EndHour: 25, SlotMinutes: 30},
		{StartHour: 9, EndHour: 10, SlotMinutes: 0},
		{StartHour: 9, EndHour: 10, SlotMinutes: 90},
	}
	for _, w := range bad {
		if _, err := BuildSlots("m-1", day, day, w, seqID()); err == nil {
			t.Errorf("window %+v accepted, want error", w)
		}
	}
	if _, err := BuildSlots("m-1", day, day.AddDate(0, 0, -1), SlotWindow{StartHour: 9, EndHour: 10, SlotMinutes: 30}, seqID()); err == nil {
		t.Errorf("inverted date range accepted, want error")
	}
}

func TestTransitionAllowed(t *testing.T) {
	allowed := [][2]string{
		{model.AppointmentPending, model.AppointmentConfirmed},
		{model.AppointmentPending, model.AppointmentCancelled},
		{model.AppointmentConfirmed, model.AppointmentCompleted},
		{model.AppointmentConfirmed, model.AppointmentCancelled},
		{model.AppointmentRescheduled, model.AppointmentConfirmed},
	}
	for _, pair := range allowed {
		if !transitionAllowed(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be allowed", pair[0], pair[1])
		}
	}
	denied := [][2]string{
		{model.AppointmentCompleted, model.AppointmentCancelled},
		{model.AppointmentCancelled, model.AppointmentConfirmed},
		{model.AppointmentPending, model.AppointmentCompleted},
	}
	for _, pair := range denied {
		if transitionAllowed(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be denied", pair[0], pair[1])
		}
	}
}
