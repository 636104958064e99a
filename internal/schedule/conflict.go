package schedule

import (
	"cmp"
	"slices"
	"time"

	"appointment-scheduler/internal/model"
)

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
// Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Candidate is a proposed booking. ID is set when rescheduling an existing
// appointment so that it never conflicts with itself.
type Candidate struct {
	ID          string
	CreatorID   string
	RecipientID string
	Start       time.Time
	End         time.Time
}

// DetectConflict returns a DoubleBooking error for the earliest-starting
// active appointment (ties broken by id) that overlaps the candidate and
// involves either participant. Appointments between the same pair are never
// conflicts.
func DetectConflict(c Candidate, existing []model.Appointment) error {
	var hits []*model.Appointment
	for i := range existing {
		a := &existing[i]
		if a.Status.Terminal() || a.ID == c.ID || a.SamePair(c.CreatorID, c.RecipientID) {
			continue
		}
		if !touches(a, c.CreatorID) && !touches(a, c.RecipientID) {
			continue
		}
		if Overlaps(c.Start, c.End, a.StartTime, a.EndTime) {
			hits = append(hits, a)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	first := slices.MinFunc(hits, byStartThenID)
	return &ConflictError{
		Kind:          DoubleBooking,
		AppointmentID: first.ID,
		Start:         first.StartTime,
		End:           first.EndTime,
	}
}

// CountOnDay counts userID's active appointments, other than excludeID,
// that start on the same calendar day as at in loc.
func CountOnDay(userID string, at time.Time, loc *time.Location, existing []model.Appointment, excludeID string) int {
	day := startOfDay(at.In(loc))
	next := day.AddDate(0, 0, 1)
	n := 0
	for i := range existing {
		a := &existing[i]
		if a.Status.Terminal() || a.ID == excludeID || !touches(a, userID) {
			continue
		}
		if !a.StartTime.Before(day) && a.StartTime.Before(next) {
			n++
		}
	}
	return n
}

// CheckCapacity rejects the candidate when userID already holds maxPerDay
// active appointments on the candidate's local day.
func CheckCapacity(party Party, userID string, p model.AvailabilityProfile, c Candidate, existing []model.Appointment) error {
	n := CountOnDay(userID, c.Start, p.Location(), existing, c.ID)
	if n >= p.MaxPerDay {
		return &ConflictError{
			Kind:    CapacityExceeded,
			Party:   party,
			UserID:  userID,
			Current: n,
			Max:     p.MaxPerDay,
		}
	}
	return nil
}

// CheckBuffer requires bufferMinutes of idle time between the candidate and
// every other active appointment of ownerID, on both sides.
func CheckBuffer(ownerID string, p model.AvailabilityProfile, c Candidate, existing []model.Appointment) error {
	if p.BufferMinutes <= 0 {
		return nil
	}
	buffer := time.Duration(p.BufferMinutes) * time.Minute
	var hits []*model.Appointment
	for i := range existing {
		a := &existing[i]
		if a.Status.Terminal() || a.ID == c.ID || a.SamePair(c.CreatorID, c.RecipientID) || !touches(a, ownerID) {
			continue
		}
		if Overlaps(c.Start, c.End.Add(buffer), a.StartTime, a.EndTime.Add(buffer)) {
			hits = append(hits, a)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	first := slices.MinFunc(hits, byStartThenID)
	return &ConflictError{
		Kind:          BufferViolation,
		AppointmentID: first.ID,
		Start:         first.StartTime,
		End:           first.EndTime,
	}
}

func touches(a *model.Appointment, userID string) bool {
	return a.CreatorID == userID || a.RecipientID == userID
}

func byStartThenID(a, b *model.Appointment) int {
	if c := a.StartTime.Compare(b.StartTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
