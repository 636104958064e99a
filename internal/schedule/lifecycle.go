package schedule

import (
	"slices"
	"strings"
	"time"

	"appointment-scheduler/internal/model"
)

var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusDeclined, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted},
	model.StatusScheduled: {model.StatusCancelled, model.StatusCompleted},
	model.StatusCompleted: {},
	model.StatusCancelled: {},
	model.StatusDeclined:  {},
}

// Allowed lists the statuses reachable from s in one step.
func Allowed(s model.Status) []model.Status {
	return slices.Clone(transitions[s])
}

func CanTransition(from, to model.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Authorize checks that actorID may request a move to `to`. Only the creator
// may cancel; the recipient has to decline instead.
func Authorize(a *model.Appointment, actorID string, to model.Status) error {
	if !a.IsParticipant(actorID) {
		return &AuthorizationError{Kind: NotAParticipant}
	}
	if to == model.StatusCancelled && a.CreatorID != actorID {
		return &AuthorizationError{Kind: NotCreator}
	}
	return nil
}

// CheckCancelNotice enforces the cancellation notice frozen in the
// appointment's availability snapshot.
func CheckCancelNotice(a *model.Appointment, now time.Time) error {
	required := a.AvailabilitySnapshot.CancelNoticeHours * 60
	if required <= 0 {
		return nil
	}
	if now.Add(time.Duration(required) * time.Minute).After(a.StartTime) {
		return &StateError{
			Kind:            InsufficientCancelNotice,
			From:            a.Status,
			To:              model.StatusCancelled,
			RequiredMinutes: required,
			ActualMinutes:   int(a.StartTime.Sub(now) / time.Minute),
		}
	}
	return nil
}

// Transition moves a to status `to` on behalf of actorID. The transition
// table is consulted before the creator-only rule, so terminal appointments
// always report InvalidTransition. reason is kept as the decline or cancel
// reason. a is left untouched on error.
func Transition(a *model.Appointment, to model.Status, actorID, reason string, now time.Time) error {
	if !a.IsParticipant(actorID) {
		return &AuthorizationError{Kind: NotAParticipant}
	}
	if !CanTransition(a.Status, to) {
		return &StateError{
			Kind:    InvalidTransition,
			From:    a.Status,
			To:      to,
			Allowed: Allowed(a.Status),
		}
	}
	if err := Authorize(a, actorID, to); err != nil {
		return err
	}
	if to == model.StatusCancelled {
		if err := CheckCancelNotice(a, now); err != nil {
			return err
		}
	}

	a.Status = to
	switch to {
	case model.StatusDeclined:
		a.DeclinedReason = strings.TrimSpace(reason)
	case model.StatusCancelled:
		a.CancelReason = strings.TrimSpace(reason)
	}
	a.UpdatedAt = now
	return nil
}

// AutoComplete marks a completed once its end has passed. It reports whether
// anything changed, so calling it again is a no-op.
func AutoComplete(a *model.Appointment, now time.Time) bool {
	if a.Status.Terminal() || now.Before(a.EndTime) {
		return false
	}
	a.Status = model.StatusCompleted
	a.UpdatedAt = now
	return true
}

// RecordAttendance adds userID to attendedBy. Attendance can be recorded
// while an appointment is live or after it completed.
func RecordAttendance(a *model.Appointment, userID string, now time.Time) error {
	if !a.IsParticipant(userID) {
		return &AuthorizationError{Kind: NotAParticipant}
	}
	if a.Status == model.StatusCancelled || a.Status == model.StatusDeclined {
		return invalid(ReasonNotAttendable, "status", "appointment was "+string(a.Status))
	}
	if !slices.Contains(a.AttendedBy, userID) {
		a.AttendedBy = append(a.AttendedBy, userID)
		a.UpdatedAt = now
	}
	return nil
}

// Rate stores userID's rating of a completed appointment, replacing any
// earlier rating by the same user.
func Rate(a *model.Appointment, userID string, rating int, feedback string, now time.Time) error {
	if !a.IsParticipant(userID) {
		return &AuthorizationError{Kind: NotAParticipant}
	}
	if rating < 1 || rating > 5 {
		return invalid(ReasonInvalidRating, "rating", "must be between 1 and 5")
	}
	if a.Status != model.StatusCompleted {
		return invalid(ReasonNotRateable, "status", "only completed appointments can be rated")
	}

	r := model.Rating{UserID: userID, Rating: rating, Feedback: strings.TrimSpace(feedback), CreatedAt: now}
	a.Ratings = slices.DeleteFunc(a.Ratings, func(x model.Rating) bool { return x.UserID == userID })
	a.Ratings = append(a.Ratings, r)
	a.UpdatedAt = now
	return nil
}
