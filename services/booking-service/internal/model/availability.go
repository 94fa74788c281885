package model

// AvailabilitySlot is the working window for one calendar date, with an
// optional break. Times are "HH:MM" in the business time zone.
type AvailabilitySlot struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	StartTime  string  `json:"startTime"`
	EndTime    string  `json:"endTime"`
	BreakStart *string `json:"breakStart,omitempty"`
	BreakEnd   *string `json:"breakEnd,omitempty"`
}

// HasBreak reports whether both break bounds are set.
func (s AvailabilitySlot) HasBreak() bool {
	return nonEmpty(s.BreakStart) && nonEmpty(s.BreakEnd)
}

func (s AvailabilitySlot) clone() AvailabilitySlot {
	c := s
	c.BreakStart = cloneString(s.BreakStart)
	c.BreakEnd = cloneString(s.BreakEnd)
	return c
}
