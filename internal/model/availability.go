package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since local midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay is ParseTimeOfDay for literals.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ClockOf returns the local time of day of t, truncated to the minute.
func ClockOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the absolute instant of t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, day.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type BreakWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

type DurationBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "available"
	AvailabilityLimited   AvailabilityStatus = "limited"
	AvailabilityAway      AvailabilityStatus = "away"
)

// AvailabilityProfile is a user's scheduling policy. Durations are in minutes
// unless the field name says otherwise.
type AvailabilityProfile struct {
	WorkingDays         []int              `json:"workingDays"`
	StartTime           TimeOfDay          `json:"startTime"`
	EndTime             TimeOfDay          `json:"endTime"`
	SlotDurationMinutes int                `json:"slotDurationMinutes"`
	BufferMinutes       int                `json:"bufferMinutes"`
	MaxPerDay           int                `json:"maxPerDay"`
	BreakWindows        []BreakWindow      `json:"breakWindows"`
	MinLeadTimeHours    int                `json:"minLeadTimeHours"`
	CancelNoticeHours   int                `json:"cancelNoticeHours"`
	DurationBounds      DurationBounds     `json:"durationBounds"`
	AvailabilityStatus  AvailabilityStatus `json:"availabilityStatus"`
	DefaultReminderTime int                `json:"defaultReminderTime"`
	Timezone            string             `json:"timezone"`
}

// Location resolves the profile timezone, falling back to UTC.
func (p *AvailabilityProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorksOn reports whether wd is one of the profile's working days.
func (p *AvailabilityProfile) WorksOn(wd time.Weekday) bool {
	for _, d := range p.WorkingDays {
		if d == int(wd) {
			return true
		}
	}
	return false
}

func (p *AvailabilityProfile) Clone() AvailabilityProfile {
	c := *p
	c.WorkingDays = append([]int(nil), p.WorkingDays...)
	c.BreakWindows = append([]BreakWindow(nil), p.BreakWindows...)
	return c
}

// AvailabilitySnapshot is the subset of the recipient's profile frozen onto an
// appointment when it is created.
type AvailabilitySnapshot struct {
	WorkingDays         []int     `json:"workingDays"`
	StartTime           TimeOfDay `json:"startTime"`
	EndTime             TimeOfDay `json:"endTime"`
	SlotDurationMinutes int       `json:"slotDurationMinutes"`
	BufferMinutes       int       `json:"bufferMinutes"`
	MaxPerDay           int       `json:"maxPerDay"`
	CancelNoticeHours   int       `json:"cancelNoticeHours"`
	Timezone            string    `json:"timezone"`
}
