// Package policy holds a tenant's working-window rules: slot validation on
// write and the per-date window used when filtering free times.
package policy

import (
	"time"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

// Window is the bookable range for one date.
type Window struct {
	Start      Clock
	End        Clock
	BreakStart Clock
	BreakEnd   Clock
	HasBreak   bool
}

// Allows reports whether t lies in [Start, End) and outside
// [BreakStart, BreakEnd).
func (w Window) Allows(t Clock) bool {
	if t < w.Start || t >= w.End {
		return false
	}
	if w.HasBreak && t >= w.BreakStart && t < w.BreakEnd {
		return false
	}
	return true
}

// ValidateSlot checks formats and ordering of one slot. Validation does not
// mutate the slot.
func ValidateSlot(s model.AvailabilitySlot) error {
	_, err := windowOf(s)
	return err
}

// ValidateSlots validates every slot and rejects two slots for one date.
func ValidateSlots(slots []model.AvailabilitySlot) error {
	seen := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		if err := ValidateSlot(s); err != nil {
			return err
		}
		if _, dup := seen[s.Date]; dup {
			return apperr.Invalid("date", "more than one availability slot for %s", s.Date)
		}
		seen[s.Date] = struct{}{}
	}
	return nil
}

func windowOf(s model.AvailabilitySlot) (Window, error) {
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return Window{}, apperr.Invalid("date", "%q is not YYYY-MM-DD", s.Date)
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return Window{}, apperr.Invalid("startTime", "%v", err)
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return Window{}, apperr.Invalid("endTime", "%v", err)
	}
	if start >= end {
		return Window{}, apperr.Invalid("endTime", "must be after startTime")
	}
	w := Window{Start: start, End: end}

	hasStart := s.BreakStart != nil && *s.BreakStart != ""
	hasEnd := s.BreakEnd != nil && *s.BreakEnd != ""
	if hasStart != hasEnd {
		return Window{}, apperr.Invalid("breakStart", "breakStart and breakEnd must be set together")
	}
	if !hasStart {
		return w, nil
	}
	bs, err := ParseClock(*s.BreakStart)
	if err != nil {
		return Window{}, apperr.Invalid("breakStart", "%v", err)
	}
	be, err := ParseClock(*s.BreakEnd)
	if err != nil {
		return Window{}, apperr.Invalid("breakEnd", "%v", err)
	}
	if bs >= be {
		return Window{}, apperr.Invalid("breakEnd", "must be after breakStart")
	}
	if bs < start || be > end {
		return Window{}, apperr.Invalid("breakStart", "break must lie within the working window")
	}
	w.BreakStart, w.BreakEnd, w.HasBreak = bs, be, true
	return w, nil
}

// WindowFor returns the window configured for date. ok is false when no
// slot covers that date. Slots are unique per date, so the first match is
// the only one.
func WindowFor(slots []model.AvailabilitySlot, date string) (Window, bool, error) {
	for _, s := range slots {
		if s.Date != date {
			continue
		}
		w, err := windowOf(s)
		if err != nil {
			return Window{}, false, err
		}
		return w, true, nil
	}
	return Window{}, false, nil
}
