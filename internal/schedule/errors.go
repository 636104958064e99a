package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"appointment-scheduler/internal/model"
)

// Reason identifies why a candidate slot or input was rejected.
type Reason string

const (
	ReasonTooShort             Reason = "TooShort"
	ReasonTooLong              Reason = "TooLong"
	ReasonInsufficientLeadTime Reason = "InsufficientLeadTime"
	ReasonInBreakWindow        Reason = "InBreakWindow"
	ReasonDayNotAvailable      Reason = "DayNotAvailable"
	ReasonOutsideWorkingHours  Reason = "OutsideWorkingHours"
	ReasonUserAway             Reason = "UserAway"

	ReasonInvalidInterval    Reason = "InvalidInterval"
	ReasonSelfBooking        Reason = "SelfBooking"
	ReasonInvalidProfile     Reason = "InvalidProfile"
	ReasonInvalidRating      Reason = "InvalidRating"
	ReasonInvalidMeetingType Reason = "InvalidMeetingType"
	ReasonNotAttendable      Reason = "NotAttendable"
	ReasonNotRateable        Reason = "NotRateable"
	ReasonInvalidDate        Reason = "InvalidDate"
	ReasonMissingField       Reason = "MissingField"
	ReasonInvalidStatus      Reason = "InvalidStatus"
)

// ValidationError is a synchronous input rejection. Never retried.
type ValidationError struct {
	Reason Reason
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation: ")
	b.WriteString(string(e.Reason))
	if e.Field != "" {
		b.WriteString(" (" + e.Field + ")")
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	return b.String()
}

// Invalid builds a ValidationError.
func Invalid(r Reason, field, detail string) *ValidationError {
	return invalid(r, field, detail)
}

func invalid(r Reason, field, detail string) *ValidationError {
	return &ValidationError{Reason: r, Field: field, Detail: detail}
}

type ConflictKind string

const (
	DoubleBooking    ConflictKind = "DoubleBooking"
	CapacityExceeded ConflictKind = "CapacityExceeded"
	BufferViolation  ConflictKind = "BufferViolation"
)

// Party names which side of a booking a capacity check concerns.
type Party string

const (
	PartyCreator   Party = "creator"
	PartyRecipient Party = "recipient"
)

// ConflictError means the caller has to pick another slot.
type ConflictError struct {
	Kind ConflictKind

	// DoubleBooking / BufferViolation
	AppointmentID string
	Start         time.Time
	End           time.Time

	// CapacityExceeded
	Party   Party
	UserID  string
	Current int
	Max     int
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case CapacityExceeded:
		return fmt.Sprintf("conflict: %s capacity exceeded for %s (%d/%d)", e.Party, e.UserID, e.Current, e.Max)
	default:
		return fmt.Sprintf("conflict: %s with appointment %s (%s - %s)", e.Kind, e.AppointmentID,
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
}

type AuthorizationKind string

const (
	NotAParticipant AuthorizationKind = "NotAParticipant"
	NotCreator      AuthorizationKind = "NotCreator"
)

type AuthorizationError struct {
	Kind AuthorizationKind
}

func (e *AuthorizationError) Error() string {
	return "forbidden: " + string(e.Kind)
}

type StateKind string

const (
	InvalidTransition        StateKind = "InvalidTransition"
	InsufficientCancelNotice StateKind = "InsufficientCancelNotice"
	AlreadyTerminal          StateKind = "AlreadyTerminal"
)

type StateError struct {
	Kind    StateKind
	From    model.Status
	To      model.Status
	Allowed []model.Status

	RequiredMinutes int
	ActualMinutes   int
}

func (e *StateError) Error() string {
	switch e.Kind {
	case InsufficientCancelNotice:
		return fmt.Sprintf("state: cancellation needs %d minutes notice, %d remain", e.RequiredMinutes, e.ActualMinutes)
	case AlreadyTerminal:
		return fmt.Sprintf("state: appointment is %s", e.From)
	default:
		return fmt.Sprintf("state: cannot move from %s to %s (allowed: %v)", e.From, e.To, e.Allowed)
	}
}

type NotFoundKind string

const (
	UserNotFound        NotFoundKind = "UserNotFound"
	AppointmentNotFound NotFoundKind = "AppointmentNotFound"
)

type NotFoundError struct {
	Kind NotFoundKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %s", e.Kind, e.ID)
}

// ErrorKind maps scheduling errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		vErr *ValidationError
		cErr *ConflictError
		aErr *AuthorizationError
		sErr *StateError
		nErr *NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &cErr):
		return "conflict"
	case errors.As(err, &aErr):
		return "forbidden"
	case errors.As(err, &sErr):
		return "state"
	case errors.As(err, &nErr):
		return "not_found"
	}
	return "unexpected"
}

// IsUserFacing reports whether err belongs to the recoverable taxonomy above.
func IsUserFacing(err error) bool {
	k := ErrorKind(err)
	return k != "" && k != "unexpected"
}
