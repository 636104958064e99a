package service

import (
	"fmt"
	"time"

	"appointment-scheduler/internal/model"
)

const whenLayout = "Mon Jan 2, 15:04 MST"

func label(a *model.Appointment) string {
	if a.Title != "" {
		return fmt.Sprintf("%q", a.Title)
	}
	return "Your appointment"
}

// when formats the start in the recipient's timezone as frozen at booking.
func when(a *model.Appointment) string {
	loc := time.UTC
	if a.AvailabilitySnapshot.Timezone != "" {
		if l, err := time.LoadLocation(a.AvailabilitySnapshot.Timezone); err == nil {
			loc = l
		}
	}
	return a.StartTime.In(loc).Format(whenLayout)
}

func statusMessage(a *model.Appointment) string {
	switch a.Status {
	case model.StatusConfirmed:
		return fmt.Sprintf("%s on %s has been confirmed", label(a), when(a))
	case model.StatusDeclined:
		msg := fmt.Sprintf("%s on %s has been declined", label(a), when(a))
		if a.DeclinedReason != "" {
			msg += ": " + a.DeclinedReason
		}
		return msg
	case model.StatusCancelled:
		msg := fmt.Sprintf("%s on %s has been cancelled", label(a), when(a))
		if a.CancelReason != "" {
			msg += ": " + a.CancelReason
		}
		return msg
	case model.StatusCompleted:
		return fmt.Sprintf("%s has been completed", label(a))
	case model.StatusScheduled:
		return fmt.Sprintf("%s has been scheduled for %s", label(a), when(a))
	default:
		return fmt.Sprintf("%s is %s", label(a), a.Status)
	}
}

func event(t model.EventType, a *model.Appointment, to, from, title, msg string, now time.Time) model.Event {
	return model.Event{
		Type:          t,
		RecipientID:   to,
		SenderID:      from,
		Title:         title,
		Message:       msg,
		AppointmentID: a.ID,
		Timestamp:     now,
	}
}

func createdEvents(a *model.Appointment, now time.Time) []model.Event {
	msg := fmt.Sprintf("New appointment request %s for %s", label(a), when(a))
	return []model.Event{
		event(model.EventAppointmentCreated, a, a.RecipientID, a.CreatorID, "Appointment created", msg, now),
		event(model.EventNotificationRequested, a, a.RecipientID, a.CreatorID, "New appointment request", msg, now),
	}
}

func statusEvents(a *model.Appointment, actorID string, now time.Time) []model.Event {
	to := a.Counterpart(actorID)
	msg := statusMessage(a)
	return []model.Event{
		event(model.EventAppointmentStatusChanged, a, to, actorID, "Appointment "+string(a.Status), msg, now),
		event(model.EventNotificationRequested, a, to, actorID, "Appointment "+string(a.Status), msg, now),
	}
}

func updatedEvents(a *model.Appointment, actorID string, now time.Time) []model.Event {
	to := a.Counterpart(actorID)
	msg := fmt.Sprintf("%s was updated and now starts %s", label(a), when(a))
	return []model.Event{
		event(model.EventAppointmentUpdated, a, to, actorID, "Appointment updated", msg, now),
		event(model.EventNotificationRequested, a, to, actorID, "Appointment updated", msg, now),
	}
}

func cancelledEvents(a *model.Appointment, actorID string, now time.Time) []model.Event {
	to := a.Counterpart(actorID)
	msg := statusMessage(a)
	return []model.Event{
		event(model.EventAppointmentCancelled, a, to, actorID, "Appointment cancelled", msg, now),
		event(model.EventNotificationRequested, a, to, actorID, "Appointment cancelled", msg, now),
	}
}

func completedEvents(a *model.Appointment, now time.Time) []model.Event {
	msg := statusMessage(a)
	return []model.Event{
		event(model.EventAppointmentCompleted, a, a.CreatorID, "", "Appointment completed", msg, now),
		event(model.EventAppointmentCompleted, a, a.RecipientID, "", "Appointment completed", msg, now),
	}
}

func reminderEvents(a *model.Appointment, now time.Time) []model.Event {
	mins := max(int(a.StartTime.Sub(now).Round(time.Minute)/time.Minute), 0)
	msg := fmt.Sprintf("%s starts in %d minutes (%s)", label(a), mins, when(a))
	return []model.Event{
		event(model.EventAppointmentReminder, a, a.CreatorID, "", "Appointment reminder", msg, now),
		event(model.EventAppointmentReminder, a, a.RecipientID, "", "Appointment reminder", msg, now),
	}
}
