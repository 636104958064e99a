package schedule

import (
	"fmt"
	"slices"
	"time"

	"appointment-scheduler/internal/model"
)

const (
	minMaxPerDay = 1
	maxMaxPerDay = 20
)

// ReminderOptions are the accepted values of defaultReminderTime, in minutes.
var ReminderOptions = []int{0, 5, 10, 15, 30, 60, 120, 1440}

// DefaultProfile is the policy of a user who never configured availability.
func DefaultProfile() model.AvailabilityProfile {
	return model.AvailabilityProfile{
		WorkingDays:         []int{1, 2, 3, 4, 5},
		StartTime:           model.TimeOfDay(9 * 60),
		EndTime:             model.TimeOfDay(17 * 60),
		SlotDurationMinutes: 30,
		BufferMinutes:       15,
		MaxPerDay:           5,
		DurationBounds:      model.DurationBounds{Min: 15, Max: 120},
		AvailabilityStatus:  model.AvailabilityAvailable,
		DefaultReminderTime: 15,
		Timezone:            "UTC",
	}
}

// ValidateProfile checks the structural invariants of p.
func ValidateProfile(p model.AvailabilityProfile) error {
	if p.StartTime < 0 || p.EndTime > 24*60 || p.StartTime >= p.EndTime {
		return invalid(ReasonInvalidProfile, "startTime", "start time must be before end time")
	}

	seen := map[int]bool{}
	for _, d := range p.WorkingDays {
		if d < 0 || d > 6 {
			return invalid(ReasonInvalidProfile, "workingDays", fmt.Sprintf("%d is not a weekday", d))
		}
		if seen[d] {
			return invalid(ReasonInvalidProfile, "workingDays", fmt.Sprintf("duplicate weekday %d", d))
		}
		seen[d] = true
	}

	if p.SlotDurationMinutes <= 0 {
		return invalid(ReasonInvalidProfile, "slotDurationMinutes", "must be positive")
	}
	if p.BufferMinutes < 0 || p.MinLeadTimeHours < 0 || p.CancelNoticeHours < 0 {
		return invalid(ReasonInvalidProfile, "", "buffer, lead time and cancel notice must not be negative")
	}
	if p.MaxPerDay < 0 {
		return invalid(ReasonInvalidProfile, "maxPerDay", "must not be negative")
	}
	if p.DurationBounds.Min <= 0 || p.DurationBounds.Min > p.DurationBounds.Max {
		return invalid(ReasonInvalidProfile, "durationBounds", "min must be positive and not exceed max")
	}

	switch p.AvailabilityStatus {
	case model.AvailabilityAvailable, model.AvailabilityLimited, model.AvailabilityAway:
	default:
		return invalid(ReasonInvalidProfile, "availabilityStatus", fmt.Sprintf("unknown status %q", p.AvailabilityStatus))
	}

	if !slices.Contains(ReminderOptions, p.DefaultReminderTime) {
		return invalid(ReasonInvalidProfile, "defaultReminderTime", fmt.Sprintf("must be one of %v", ReminderOptions))
	}

	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return invalid(ReasonInvalidProfile, "timezone", err.Error())
		}
	}

	breaks := slices.Clone(p.BreakWindows)
	slices.SortFunc(breaks, func(a, b model.BreakWindow) int { return int(a.Start - b.Start) })
	for i, bw := range breaks {
		if bw.Start >= bw.End {
			return invalid(ReasonInvalidProfile, "breakWindows", fmt.Sprintf("break %s-%s is empty", bw.Start, bw.End))
		}
		if bw.Start < p.StartTime || bw.End > p.EndTime {
			return invalid(ReasonInvalidProfile, "breakWindows", fmt.Sprintf("break %s-%s is outside working hours", bw.Start, bw.End))
		}
		if i > 0 && bw.Start < breaks[i-1].End {
			return invalid(ReasonInvalidProfile, "breakWindows", fmt.Sprintf("break %s-%s overlaps %s-%s",
				bw.Start, bw.End, breaks[i-1].Start, breaks[i-1].End))
		}
	}
	return nil
}

// ProfilePatch is a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	WorkingDays         *[]int                    `json:"workingDays,omitempty"`
	StartTime           *model.TimeOfDay          `json:"startTime,omitempty"`
	EndTime             *model.TimeOfDay          `json:"endTime,omitempty"`
	SlotDurationMinutes *int                      `json:"slotDurationMinutes,omitempty"`
	BufferMinutes       *int                      `json:"bufferMinutes,omitempty"`
	MaxPerDay           *int                      `json:"maxPerDay,omitempty"`
	BreakWindows        *[]model.BreakWindow      `json:"breakWindows,omitempty"`
	MinLeadTimeHours    *int                      `json:"minLeadTimeHours,omitempty"`
	CancelNoticeHours   *int                      `json:"cancelNoticeHours,omitempty"`
	DurationBounds      *model.DurationBounds     `json:"durationBounds,omitempty"`
	AvailabilityStatus  *model.AvailabilityStatus `json:"availabilityStatus,omitempty"`
	DefaultReminderTime *int                      `json:"defaultReminderTime,omitempty"`
	Timezone            *string                   `json:"timezone,omitempty"`
}

// ApplyProfilePatch returns p with patch applied. maxPerDay is clamped to
// [1,20]; the result must still pass ValidateProfile.
func ApplyProfilePatch(p model.AvailabilityProfile, patch ProfilePatch) (model.AvailabilityProfile, error) {
	out := p.Clone()
	if patch.WorkingDays != nil {
		out.WorkingDays = slices.Clone(*patch.WorkingDays)
		slices.Sort(out.WorkingDays)
	}
	if patch.StartTime != nil {
		out.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		out.EndTime = *patch.EndTime
	}
	if patch.SlotDurationMinutes != nil {
		out.SlotDurationMinutes = *patch.SlotDurationMinutes
	}
	if patch.BufferMinutes != nil {
		out.BufferMinutes = *patch.BufferMinutes
	}
	if patch.MaxPerDay != nil {
		out.MaxPerDay = min(max(*patch.MaxPerDay, minMaxPerDay), maxMaxPerDay)
	}
	if patch.BreakWindows != nil {
		out.BreakWindows = slices.Clone(*patch.BreakWindows)
		slices.SortFunc(out.BreakWindows, func(a, b model.BreakWindow) int { return int(a.Start - b.Start) })
	}
	if patch.MinLeadTimeHours != nil {
		out.MinLeadTimeHours = *patch.MinLeadTimeHours
	}
	if patch.CancelNoticeHours != nil {
		out.CancelNoticeHours = *patch.CancelNoticeHours
	}
	if patch.DurationBounds != nil {
		out.DurationBounds = *patch.DurationBounds
	}
	if patch.AvailabilityStatus != nil {
		out.AvailabilityStatus = *patch.AvailabilityStatus
	}
	if patch.DefaultReminderTime != nil {
		out.DefaultReminderTime = *patch.DefaultReminderTime
	}
	if patch.Timezone != nil {
		out.Timezone = *patch.Timezone
	}
	if err := ValidateProfile(out); err != nil {
		return p, err
	}
	return out, nil
}

// Snapshot freezes the policy fields an appointment keeps after creation.
func Snapshot(p model.AvailabilityProfile) model.AvailabilitySnapshot {
	return model.AvailabilitySnapshot{
		WorkingDays:         slices.Clone(p.WorkingDays),
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		SlotDurationMinutes: p.SlotDurationMinutes,
		BufferMinutes:       p.BufferMinutes,
		MaxPerDay:           p.MaxPerDay,
		CancelNoticeHours:   p.CancelNoticeHours,
		Timezone:            p.Timezone,
	}
}
