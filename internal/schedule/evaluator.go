package schedule

import (
	"fmt"
	"iter"
	"time"

	"appointment-scheduler/internal/model"
)

// Slot is a half-open [Start, End) interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsLegalSlot checks a candidate booking against the profile of the person
// being booked. The first failing rule wins, in this order: duration, lead
// time, working day, working window, breaks, away status.
func IsLegalSlot(p model.AvailabilityProfile, start, end, now time.Time) error {
	if !end.After(start) {
		return invalid(ReasonInvalidInterval, "endTime", "end must be after start")
	}

	d := end.Sub(start)
	if d < time.Duration(p.DurationBounds.Min)*time.Minute {
		return invalid(ReasonTooShort, "", fmt.Sprintf("%s is below the %d minute minimum", d, p.DurationBounds.Min))
	}
	if d > time.Duration(p.DurationBounds.Max)*time.Minute {
		return invalid(ReasonTooLong, "", fmt.Sprintf("%s exceeds the %d minute maximum", d, p.DurationBounds.Max))
	}

	earliest := now.Add(time.Duration(p.MinLeadTimeHours) * time.Hour)
	if start.Before(earliest) {
		return invalid(ReasonInsufficientLeadTime, "", fmt.Sprintf("bookings need %d hours notice", p.MinLeadTimeHours))
	}

	loc := p.Location()
	ls, le := start.In(loc), end.In(loc)
	if !p.WorksOn(ls.Weekday()) {
		return invalid(ReasonDayNotAvailable, "", ls.Weekday().String()+" is not a working day")
	}

	// a window ending at 24:00 resolves to the next midnight
	windowStart, windowEnd := p.StartTime.On(ls), p.EndTime.On(ls)
	if !sameDay(ls, le) && le.After(startOfDay(ls).AddDate(0, 0, 1)) {
		return invalid(ReasonOutsideWorkingHours, "", "appointment crosses midnight")
	}
	if ls.Before(windowStart) || le.After(windowEnd) {
		return invalid(ReasonOutsideWorkingHours, "", fmt.Sprintf("working hours are %s-%s", p.StartTime, p.EndTime))
	}

	for _, bw := range p.BreakWindows {
		if Overlaps(ls, le, bw.Start.On(ls), bw.End.On(ls)) {
			return invalid(ReasonInBreakWindow, "", fmt.Sprintf("overlaps break %s-%s", bw.Start, bw.End))
		}
	}

	if p.AvailabilityStatus == model.AvailabilityAway {
		return invalid(ReasonUserAway, "", "user is away")
	}
	return nil
}

// EnumerateSlots walks the working window of date in slotDuration steps and
// yields the slots that fit before the end of the window, avoid breaks and
// keep bufferMinutes after every active existing appointment. The sequence
// is a pure function of its inputs and can be ranged over repeatedly.
func EnumerateSlots(p model.AvailabilityProfile, date time.Time, existing []model.Appointment) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if p.SlotDurationMinutes <= 0 || p.AvailabilityStatus == model.AvailabilityAway {
			return
		}
		day := date.In(p.Location())
		if !p.WorksOn(day.Weekday()) {
			return
		}

		step := time.Duration(p.SlotDurationMinutes) * time.Minute
		buffer := time.Duration(p.BufferMinutes) * time.Minute
		windowEnd := p.EndTime.On(day)

		for cur := p.StartTime.On(day); !cur.Add(step).After(windowEnd); cur = cur.Add(step) {
			slot := Slot{Start: cur, End: cur.Add(step)}
			if inBreak(p, slot) || blocked(slot, existing, buffer) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

func inBreak(p model.AvailabilityProfile, s Slot) bool {
	for _, bw := range p.BreakWindows {
		if Overlaps(s.Start, s.End, bw.Start.On(s.Start), bw.End.On(s.Start)) {
			return true
		}
	}
	return false
}

func blocked(s Slot, existing []model.Appointment, buffer time.Duration) bool {
	for i := range existing {
		a := &existing[i]
		if a.Status.Terminal() {
			continue
		}
		if Overlaps(s.Start, s.End, a.StartTime, a.EndTime.Add(buffer)) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
