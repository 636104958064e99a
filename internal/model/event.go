package model

import "time"

type EventType string

const (
	EventAppointmentCreated       EventType = "AppointmentCreated"
	EventAppointmentUpdated       EventType = "AppointmentUpdated"
	EventAppointmentStatusChanged EventType = "AppointmentStatusChanged"
	EventAppointmentCancelled     EventType = "AppointmentCancelled"
	EventAppointmentCompleted     EventType = "AppointmentCompleted"
	EventAppointmentReminder      EventType = "AppointmentReminder"
	EventNotificationRequested    EventType = "NotificationRequested"
)

// Event is what the scheduling core hands to notification delivery.
type Event struct {
	Type          EventType `json:"type"`
	RecipientID   string    `json:"recipientId"`
	SenderID      string    `json:"senderId,omitempty"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AppointmentID string    `json:"appointmentId"`
	Timestamp     time.Time `json:"timestamp"`
}
