package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

var ErrBadSlotWindow = errors.New("invalid slot generation window")

// SlotWindow describes a merchant's working hours for slot generation.
type SlotWindow struct {
	StartHour   int // inclusive, 0-23
	EndHour     int // exclusive, 1-24
	SlotMinutes int
}

func (w SlotWindow) validate() error {
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return fmt.Errorf("%w: hours %d-%d", ErrBadSlotWindow, w.StartHour, w.EndHour)
	}
	if w.SlotMinutes <= 0 || w.SlotMinutes > (w.EndHour-w.StartHour)*60 {
		return fmt.Errorf("%w: slot length %dm", ErrBadSlotWindow, w.SlotMinutes)
	}
	return nil
}

// BuildSlots generates the slot grid for every day in [from, to]. Only whole
// slots that fit inside the working hours are produced; a trailing partial
// interval is dropped.
func BuildSlots(merchantID string, from, to time.Time, w SlotWindow, newID func() string) ([]model.TimeSlot, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	from = from.Truncate(24 * time.Hour)
	to = to.Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range %s after %s", ErrBadSlotWindow, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var slots []model.TimeSlot
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayStart := day.Add(time.Duration(w.StartHour) * time.Hour)
		dayEnd := day.Add(time.Duration(w.EndHour) * time.Hour)
		step := time.Duration(w.SlotMinutes) * time.Minute
		for cur := dayStart; !cur.Add(step).After(dayEnd); cur = cur.Add(step) {
			slots = append(slots, model.TimeSlot{
				ID:          newID(),
				MerchantID:  merchantID,
				Date:        day,
				StartTime:   cur.Format("15:04"),
				EndTime:     cur.Add(step).Format("15:04"),
				IsAvailable: true,
			})
		}
	}
	return slots, nil
}

// GenerateSlots builds and persists the slot grid. Regeneration over an
// existing range is a no-op for slots already present.
func (s *Service) GenerateSlots(ctx context.Context, merchantID string, from, to time.Time, w SlotWindow) (int64, error) {
	if _, err := s.merchants.GetMerchant(ctx, merchantID); err != nil {
		return 0, fmt.Errorf("merchant lookup: %w", err)
	}
	slots, err := BuildSlots(merchantID, from, to, w, uuid.NewString)
	if err != nil {
		return 0, err
	}
	inserted, err := s.slots.CreateBatch(ctx, slots)
	if err != nil {
		return inserted, fmt.Errorf("insert slots: %w", err)
	}
	s.logger.Info("generated time slots",
		"merchant_id", merchantID,
		"requested", len(slots),
		"inserted", inserted,
	)
	return inserted, nil
}
