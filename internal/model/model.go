package model

import (
	"slices"
	"time"
)

type User struct {
	ID           string
	Email        string
	Name         string
	Availability *AvailabilityProfile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDeclined  Status = "declined"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDeclined
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusScheduled,
		StatusCompleted, StatusCancelled, StatusDeclined:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that occupy a participant's calendar.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusScheduled}

type MeetingType string

const (
	MeetingVideoCall MeetingType = "VideoCall"
	MeetingPhoneCall MeetingType = "PhoneCall"
	MeetingInPerson  MeetingType = "InPerson"
)

func (m MeetingType) Valid() bool {
	return m == MeetingVideoCall || m == MeetingPhoneCall || m == MeetingInPerson
}

type Rating struct {
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Appointment struct {
	ID                   string               `json:"id"`
	CreatorID            string               `json:"creatorId"`
	RecipientID          string               `json:"recipientId"`
	StartTime            time.Time            `json:"startTime"`
	EndTime              time.Time            `json:"endTime"`
	Status               Status               `json:"status"`
	Title                string               `json:"title"`
	Description          string               `json:"description,omitempty"`
	MeetingType          MeetingType          `json:"meetingType"`
	DeclinedReason       string               `json:"declinedReason,omitempty"`
	CancelReason         string               `json:"cancelReason,omitempty"`
	AttendedBy           []string             `json:"attendedBy"`
	Ratings              []Rating             `json:"ratings"`
	AvailabilitySnapshot AvailabilitySnapshot `json:"availabilitySnapshot"`
	ReminderMinutes      int                  `json:"reminderMinutes"`
	Reminded             bool                 `json:"reminded"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// IsParticipant reports whether userID is the creator or the recipient.
func (a *Appointment) IsParticipant(userID string) bool {
	return userID != "" && (a.CreatorID == userID || a.RecipientID == userID)
}

// Counterpart returns the other participant relative to userID.
func (a *Appointment) Counterpart(userID string) string {
	if a.CreatorID == userID {
		return a.RecipientID
	}
	return a.CreatorID
}

// SamePair reports whether both appointments are between the same two users,
// regardless of who created them.
func (a *Appointment) SamePair(creatorID, recipientID string) bool {
	return (a.CreatorID == creatorID && a.RecipientID == recipientID) ||
		(a.CreatorID == recipientID && a.RecipientID == creatorID)
}

// Clone returns a copy that shares no slices with a.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.AttendedBy = slices.Clone(a.AttendedBy)
	c.Ratings = slices.Clone(a.Ratings)
	c.AvailabilitySnapshot.WorkingDays = slices.Clone(a.AvailabilitySnapshot.WorkingDays)
	return &c
}
