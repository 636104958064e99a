package schedule_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
)

var allStatuses = []model.Status{
	model.StatusPending, model.StatusConfirmed, model.StatusScheduled,
	model.StatusCompleted, model.StatusCancelled, model.StatusDeclined,
}

func newAppt(st model.Status) *model.Appointment {
	return &model.Appointment{
		ID: "a1", CreatorID: "creator", RecipientID: "recipient",
		StartTime: at(monday, "10:00"), EndTime: at(monday, "10:30"),
		Status: st,
	}
}

func TestTransitionTable(t *testing.T) {
	want := map[model.Status][]model.Status{
		model.StatusPending:   {model.StatusConfirmed, model.StatusDeclined, model.StatusCancelled},
		model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted},
		model.StatusScheduled: {model.StatusCancelled, model.StatusCompleted},
	}
	now := monday.Add(-48 * time.Hour)
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			a := newAppt(from)
			err := schedule.Transition(a, to, "creator", "", now)
			allowed := slices.Contains(want[from], to)
			if allowed && err != nil {
				t.Errorf("%s -> %s should be allowed: %v", from, to, err)
			}
			if !allowed {
				var sErr *schedule.StateError
				if !errors.As(err, &sErr) || sErr.Kind != schedule.InvalidTransition {
					t.Errorf("%s -> %s should fail with InvalidTransition, got %v", from, to, err)
					continue
				}
				if sErr.From != from || sErr.To != to || !slices.Equal(sErr.Allowed, want[from]) {
					t.Errorf("%s -> %s: unexpected error detail %+v", from, to, sErr)
				}
				if a.Status != from {
					t.Errorf("failed transition must not mutate status")
				}
			}
		}
	}
}

func TestTerminalClosure(t *testing.T) {
	now := monday.Add(-48 * time.Hour)
	for _, from := range []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusDeclined} {
		for _, to := range allStatuses {
			for _, actor := range []string{"creator", "recipient"} {
				err := schedule.Transition(newAppt(from), to, actor, "", now)
				var sErr *schedule.StateError
				if !errors.As(err, &sErr) || sErr.Kind != schedule.InvalidTransition {
					t.Errorf("%s -> %s by %s: expected InvalidTransition, got %v", from, to, actor, err)
				}
			}
		}
	}
}

func TestTransitionAuthorization(t *testing.T) {
	now := monday.Add(-48 * time.Hour)

	err := schedule.Transition(newAppt(model.StatusPending), model.StatusConfirmed, "stranger", "", now)
	var aErr *schedule.AuthorizationError
	if !errors.As(err, &aErr) || aErr.Kind != schedule.NotAParticipant {
		t.Errorf("expected NotAParticipant, got %v", err)
	}

	err = schedule.Transition(newAppt(model.StatusPending), model.StatusCancelled, "recipient", "", now)
	if !errors.As(err, &aErr) || aErr.Kind != schedule.NotCreator {
		t.Errorf("expected NotCreator, got %v", err)
	}

	a := newAppt(model.StatusPending)
	if err := schedule.Transition(a, model.StatusDeclined, "recipient", "  busy  ", now); err != nil {
		t.Fatalf("recipient decline: %v", err)
	}
	if a.DeclinedReason != "busy" {
		t.Errorf("expected trimmed decline reason, got %q", a.DeclinedReason)
	}

	a = newAppt(model.StatusPending)
	if err := schedule.Transition(a, model.StatusConfirmed, "recipient", "", now); err != nil {
		t.Fatalf("recipient confirm: %v", err)
	}
}

func TestCancelNotice(t *testing.T) {
	a := newAppt(model.StatusConfirmed)
	a.AvailabilitySnapshot.CancelNoticeHours = 24

	now := a.StartTime.Add(-10 * time.Hour)
	err := schedule.Transition(a, model.StatusCancelled, "creator", "", now)
	var sErr *schedule.StateError
	if !errors.As(err, &sErr) || sErr.Kind != schedule.InsufficientCancelNotice {
		t.Fatalf("expected InsufficientCancelNotice, got %v", err)
	}
	if sErr.RequiredMinutes != 24*60 || sErr.ActualMinutes != 600 {
		t.Errorf("unexpected minutes required=%d actual=%d", sErr.RequiredMinutes, sErr.ActualMinutes)
	}
	if a.Status != model.StatusConfirmed {
		t.Errorf("status must be unchanged, got %s", a.Status)
	}

	// exactly on the notice boundary is allowed
	boundary := a.StartTime.Add(-24 * time.Hour)
	if err := schedule.Transition(a, model.StatusCancelled, "creator", "plans changed", boundary); err != nil {
		t.Fatalf("cancel at boundary: %v", err)
	}
	if a.CancelReason != "plans changed" {
		t.Errorf("cancel reason not recorded: %q", a.CancelReason)
	}
}

func TestAutoCompleteIdempotent(t *testing.T) {
	a := newAppt(model.StatusPending)
	before := a.EndTime.Add(-time.Minute)
	if schedule.AutoComplete(a, before) {
		t.Fatal("must not complete before the end time")
	}

	after := a.EndTime.Add(time.Minute)
	if !schedule.AutoComplete(a, after) {
		t.Fatal("expected completion after end time")
	}
	if a.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", a.Status)
	}
	if schedule.AutoComplete(a, after) {
		t.Fatal("second run must be a no-op")
	}

	c := newAppt(model.StatusCancelled)
	if schedule.AutoComplete(c, after) || c.Status != model.StatusCancelled {
		t.Fatal("terminal appointments are never auto-completed")
	}
}

func TestRecordAttendanceAndRate(t *testing.T) {
	now := monday.Add(time.Hour * 12)
	a := newAppt(model.StatusCompleted)

	if err := schedule.RecordAttendance(a, "creator", now); err != nil {
		t.Fatalf("attendance: %v", err)
	}
	_ = schedule.RecordAttendance(a, "creator", now)
	if len(a.AttendedBy) != 1 {
		t.Errorf("attendance should be a set, got %v", a.AttendedBy)
	}

	if err := schedule.Rate(a, "recipient", 3, "ok", now); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if err := schedule.Rate(a, "recipient", 5, "great", now.Add(time.Minute)); err != nil {
		t.Fatalf("re-rate: %v", err)
	}
	if len(a.Ratings) != 1 || a.Ratings[0].Rating != 5 || a.Ratings[0].Feedback != "great" {
		t.Errorf("expected last write to win, got %+v", a.Ratings)
	}

	if reasonOf(t, schedule.Rate(a, "creator", 6, "", now)) != schedule.ReasonInvalidRating {
		t.Error("rating above 5 should be rejected")
	}
	if reasonOf(t, schedule.Rate(newAppt(model.StatusConfirmed), "creator", 4, "", now)) != schedule.ReasonNotRateable {
		t.Error("only completed appointments can be rated")
	}
	if reasonOf(t, schedule.RecordAttendance(newAppt(model.StatusDeclined), "creator", now)) != schedule.ReasonNotAttendable {
		t.Error("declined appointments cannot be attended")
	}
}
