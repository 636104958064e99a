package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
	"appointment-scheduler/internal/service"
	"appointment-scheduler/internal/store"
)

// 2030-01-07 is a Monday.
var monday = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

func at(clock string) time.Time {
	return model.MustTimeOfDay(clock).On(monday)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) count(t model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t model.EventType) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i]
		}
	}
	return model.Event{}
}

type env struct {
	svc  *service.Service
	repo *store.Memory
	pub  *recorder
	now  *clock
}

func setup(t *testing.T, opts ...func(*service.Options)) *env {
	t.Helper()
	e := &env{repo: store.NewMemory(), pub: &recorder{}, now: &clock{t: monday.Add(-12 * time.Hour)}}
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		if err := e.repo.CreateUser(context.Background(), &model.User{ID: id, Email: id + "@example.com", Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	bob := schedule.DefaultProfile()
	bob.MaxPerDay = 2
	e.setProfile(t, "bob", bob)

	var n atomic.Int64
	o := service.Options{
		Now:    e.now.Now,
		NewID:  func() string { return fmt.Sprintf("a%d", n.Add(1)) },
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
	for _, f := range opts {
		f(&o)
	}
	e.svc = service.New(e.repo, e.pub, o)
	return e
}

func (e *env) setProfile(t *testing.T, id string, p model.AvailabilityProfile) {
	t.Helper()
	if err := e.repo.SaveProfile(context.Background(), id, p); err != nil {
		t.Fatal(err)
	}
}

func (e *env) book(t *testing.T, creator, recipient, from, to string) *model.Appointment {
	t.Helper()
	a, err := e.svc.CreateAppointment(context.Background(), creator, service.CreateRequest{
		RecipientID: recipient,
		Start:       at(from),
		End:         at(to),
		Title:       "Sync",
	})
	if err != nil {
		t.Fatalf("book %s->%s %s-%s: %v", creator, recipient, from, to, err)
	}
	return a
}

func conflictOf(t *testing.T, err error) *schedule.ConflictError {
	t.Helper()
	var c *schedule.ConflictError
	if !errors.As(err, &c) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	return c
}

func stateOf(t *testing.T, err error) *schedule.StateError {
	t.Helper()
	var s *schedule.StateError
	if !errors.As(err, &s) {
		t.Fatalf("expected StateError, got %v", err)
	}
	return s
}

func TestCreateAppointment(t *testing.T) {
	e := setup(t)
	a := e.book(t, "alice", "bob", "10:00", "10:30")

	if a.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", a.Status)
	}
	if a.MeetingType != model.MeetingVideoCall {
		t.Errorf("expected default meeting type, got %s", a.MeetingType)
	}
	if a.AvailabilitySnapshot.MaxPerDay != 2 || a.ReminderMinutes != 15 {
		t.Errorf("snapshot not copied from recipient: %+v reminder=%d", a.AvailabilitySnapshot, a.ReminderMinutes)
	}
	if _, err := e.repo.GetAppointment(context.Background(), a.ID); err != nil {
		t.Fatalf("not persisted: %v", err)
	}

	if e.pub.count(model.EventAppointmentCreated) != 1 || e.pub.count(model.EventNotificationRequested) != 1 {
		t.Fatalf("expected created + notification events, got %+v", e.pub.events)
	}
	if ev := e.pub.last(model.EventNotificationRequested); ev.RecipientID != "bob" || ev.SenderID != "alice" {
		t.Errorf("notification should go to the recipient: %+v", ev)
	}
}

func TestCreateAppointmentRejects(t *testing.T) {
	tests := []struct {
		name   string
		req    service.CreateRequest
		reason schedule.Reason
	}{
		{"self booking", service.CreateRequest{RecipientID: "alice", Start: at("10:00"), End: at("10:30")}, schedule.ReasonSelfBooking},
		{"missing recipient", service.CreateRequest{Start: at("10:00"), End: at("10:30")}, schedule.ReasonMissingField},
		{"too short", service.CreateRequest{RecipientID: "bob", Start: at("10:00"), End: at("10:10")}, schedule.ReasonTooShort},
		{"weekend", service.CreateRequest{RecipientID: "bob", Start: monday.Add(-14 * time.Hour), End: monday.Add(-13 * time.Hour)}, schedule.ReasonDayNotAvailable},
		{"after hours", service.CreateRequest{RecipientID: "bob", Start: at("17:00"), End: at("17:30")}, schedule.ReasonOutsideWorkingHours},
		{"bad meeting type", service.CreateRequest{RecipientID: "bob", Start: at("10:00"), End: at("10:30"), MeetingType: "Carrier pigeon"}, schedule.ReasonInvalidMeetingType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			_, err := e.svc.CreateAppointment(context.Background(), "alice", tt.req)
			var v *schedule.ValidationError
			if !errors.As(err, &v) || v.Reason != tt.reason {
				t.Fatalf("expected %s, got %v", tt.reason, err)
			}
			if len(e.pub.events) != 0 {
				t.Errorf("rejected booking emitted events")
			}
		})
	}
}

func TestCreateAppointmentUnknownRecipient(t *testing.T) {
	e := setup(t)
	_, err := e.svc.CreateAppointment(context.Background(), "alice", service.CreateRequest{
		RecipientID: "zed", Start: at("10:00"), End: at("10:30"),
	})
	var nf *schedule.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != schedule.UserNotFound {
		t.Fatalf("expected UserNotFound, got %v", err)
	}
}

func TestCreateAppointmentAwayRecipient(t *testing.T) {
	e := setup(t)
	p := schedule.DefaultProfile()
	p.AvailabilityStatus = model.AvailabilityAway
	e.setProfile(t, "carol", p)

	_, err := e.svc.CreateAppointment(context.Background(), "alice", service.CreateRequest{
		RecipientID: "carol", Start: at("10:00"), End: at("10:30"),
	})
	var v *schedule.ValidationError
	if !errors.As(err, &v) || v.Reason != schedule.ReasonUserAway {
		t.Fatalf("expected UserAway, got %v", err)
	}
}

func TestScenarioOverlapAndSlots(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a1 := e.book(t, "alice", "bob", "10:00", "10:30")
	if _, err := e.svc.UpdateAppointment(ctx, a1.ID, "bob", service.Patch{Status: ptr(model.StatusConfirmed)}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	slots, err := e.svc.GetAvailableSlots(ctx, "bob", "2030-01-07")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 14 {
		t.Fatalf("expected 14 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(at("10:00")) || s.Start.Equal(at("10:30")) {
			t.Errorf("slot %s should be excluded", s.Start.Format("15:04"))
		}
	}

	_, err = e.svc.CreateAppointment(ctx, "carol", service.CreateRequest{RecipientID: "bob", Start: at("10:15"), End: at("10:45")})
	c := conflictOf(t, err)
	if c.Kind != schedule.DoubleBooking || c.AppointmentID != a1.ID {
		t.Fatalf("expected DoubleBooking on %s, got %+v", a1.ID, c)
	}

	e.book(t, "carol", "bob", "10:30", "11:00")
}

func TestRebookingSamePairIsNotAConflict(t *testing.T) {
	e := setup(t)
	e.book(t, "alice", "bob", "10:00", "10:30")
	e.book(t, "bob", "alice", "10:15", "10:45")
}

func TestCapacityMonotonicity(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.book(t, "alice", "bob", "09:00", "09:30")
	e.book(t, "carol", "bob", "11:00", "11:30")

	_, err := e.svc.CreateAppointment(ctx, "dave", service.CreateRequest{RecipientID: "bob", Start: at("14:00"), End: at("14:30")})
	c := conflictOf(t, err)
	if c.Kind != schedule.CapacityExceeded || c.Party != schedule.PartyRecipient || c.Current != 2 || c.Max != 2 {
		t.Fatalf("expected recipient capacity 2/2, got %+v", c)
	}

	// bob is full whichever side he is on
	_, err = e.svc.CreateAppointment(ctx, "bob", service.CreateRequest{RecipientID: "dave", Start: at("15:00"), End: at("15:30")})
	c = conflictOf(t, err)
	if c.Kind != schedule.CapacityExceeded || c.Party != schedule.PartyCreator || c.UserID != "bob" {
		t.Fatalf("expected creator capacity, got %+v", c)
	}

	// other days are unaffected
	tuesday := monday.AddDate(0, 0, 1)
	if _, err := e.svc.CreateAppointment(ctx, "dave", service.CreateRequest{
		RecipientID: "bob", Start: tuesday.Add(14 * time.Hour), End: tuesday.Add(14*time.Hour + 30*time.Minute),
	}); err != nil {
		t.Fatalf("tuesday booking: %v", err)
	}
}

func TestCancelledAppointmentsFreeCapacity(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "09:00", "09:30")
	e.book(t, "carol", "bob", "11:00", "11:30")
	if _, err := e.svc.CancelAppointment(ctx, a.ID, "alice", "conflict"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	e.book(t, "dave", "bob", "14:00", "14:30")
}

func TestConcurrentBookingsOneWins(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	const n = 10
	for i := range n {
		id := fmt.Sprintf("c%d", i)
		if err := e.repo.CreateUser(ctx, &model.User{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.CreateAppointment(ctx, fmt.Sprintf("c%d", i), service.CreateRequest{
				RecipientID: "bob", Start: at("10:00"), End: at("10:30"),
			})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var c *schedule.ConflictError
		if !errors.As(err, &c) || c.Kind != schedule.DoubleBooking {
			t.Errorf("expected DoubleBooking, got %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one booking to succeed, got %d", ok)
	}
}

func TestConcurrentBookingsGetDistinctIDs(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	const n = 10
	for i := range n {
		for _, id := range []string{fmt.Sprintf("c%d", i), fmt.Sprintf("d%d", i)} {
			if err := e.repo.CreateUser(ctx, &model.User{ID: id, Email: id + "@example.com"}); err != nil {
				t.Fatal(err)
			}
		}
	}

	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := e.svc.CreateAppointment(ctx, fmt.Sprintf("c%d", i), service.CreateRequest{
				RecipientID: fmt.Sprintf("d%d", i), Start: at("10:00"), End: at("10:30"),
			})
			errs[i] = err
			if err == nil {
				ids[i] = a.ID
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
		if seen[ids[i]] {
			t.Fatalf("id %q issued twice", ids[i])
		}
		seen[ids[i]] = true
	}
}

func TestUpdateAppointmentTransitions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")

	got, err := e.svc.UpdateAppointment(ctx, a.ID, "bob", service.Patch{Status: ptr(model.StatusConfirmed)})
	if err != nil || got.Status != model.StatusConfirmed {
		t.Fatalf("confirm: %v %v", got, err)
	}
	if ev := e.pub.last(model.EventAppointmentStatusChanged); ev.RecipientID != "alice" || ev.SenderID != "bob" {
		t.Errorf("status change should notify the counterpart: %+v", ev)
	}

	_, err = e.svc.UpdateAppointment(ctx, a.ID, "bob", service.Patch{Status: ptr(model.StatusDeclined)})
	s := stateOf(t, err)
	if s.Kind != schedule.InvalidTransition || s.From != model.StatusConfirmed || len(s.Allowed) != 2 {
		t.Fatalf("expected InvalidTransition from confirmed, got %+v", s)
	}

	_, err = e.svc.UpdateAppointment(ctx, a.ID, "carol", service.Patch{Title: ptr("x")})
	var az *schedule.AuthorizationError
	if !errors.As(err, &az) || az.Kind != schedule.NotAParticipant {
		t.Fatalf("expected NotAParticipant, got %v", err)
	}
}

func TestDeclineKeepsReason(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")

	got, err := e.svc.UpdateAppointment(ctx, a.ID, "bob", service.Patch{
		Status: ptr(model.StatusDeclined),
		Reason: ptr(" travelling "),
	})
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != model.StatusDeclined || got.DeclinedReason != "travelling" {
		t.Fatalf("unexpected %+v", got)
	}

	_, err = e.svc.UpdateAppointment(ctx, a.ID, "alice", service.Patch{Title: ptr("retry")})
	if s := stateOf(t, err); s.Kind != schedule.AlreadyTerminal {
		t.Fatalf("expected AlreadyTerminal, got %+v", s)
	}
}

func TestRescheduleRevalidates(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")
	e.book(t, "carol", "bob", "13:00", "13:30")

	got, err := e.svc.UpdateAppointment(ctx, a.ID, "alice", service.Patch{Start: ptr(at("10:15")), End: ptr(at("10:45"))})
	if err != nil {
		t.Fatalf("moving within its own slot: %v", err)
	}
	if !got.StartTime.Equal(at("10:15")) {
		t.Errorf("time not updated: %v", got.StartTime)
	}
	if ev := e.pub.last(model.EventAppointmentUpdated); ev.RecipientID != "bob" {
		t.Errorf("expected update notification for bob, got %+v", ev)
	}

	_, err = e.svc.UpdateAppointment(ctx, a.ID, "alice", service.Patch{Start: ptr(at("13:15")), End: ptr(at("13:45"))})
	if c := conflictOf(t, err); c.Kind != schedule.DoubleBooking {
		t.Fatalf("expected DoubleBooking, got %+v", c)
	}

	_, err = e.svc.UpdateAppointment(ctx, a.ID, "alice", service.Patch{Start: ptr(at("18:00")), End: ptr(at("18:30"))})
	var v *schedule.ValidationError
	if !errors.As(err, &v) || v.Reason != schedule.ReasonOutsideWorkingHours {
		t.Fatalf("expected OutsideWorkingHours, got %v", err)
	}

	stored, _ := e.repo.GetAppointment(ctx, a.ID)
	if !stored.StartTime.Equal(at("10:15")) {
		t.Errorf("failed reschedule must not persist, got %v", stored.StartTime)
	}
}

func TestCancelAppointment(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")

	_, err := e.svc.CancelAppointment(ctx, a.ID, "bob", "")
	var az *schedule.AuthorizationError
	if !errors.As(err, &az) || az.Kind != schedule.NotCreator {
		t.Fatalf("expected NotCreator, got %v", err)
	}

	got, err := e.svc.CancelAppointment(ctx, a.ID, "alice", "sick")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusCancelled || got.CancelReason != "sick" {
		t.Fatalf("unexpected %+v", got)
	}
	if _, err := e.repo.GetAppointment(ctx, a.ID); err != nil {
		t.Fatal("cancelled appointments are never deleted")
	}
	if ev := e.pub.last(model.EventAppointmentCancelled); ev.RecipientID != "bob" {
		t.Errorf("cancellation should notify bob, got %+v", ev)
	}

	_, err = e.svc.CancelAppointment(ctx, a.ID, "alice", "")
	if s := stateOf(t, err); s.Kind != schedule.InvalidTransition {
		t.Fatalf("expected InvalidTransition, got %+v", s)
	}
}

func TestCancelNotice(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	p := schedule.DefaultProfile()
	p.CancelNoticeHours = 24
	e.setProfile(t, "bob", p)
	e.now.Set(monday)

	a := e.book(t, "alice", "bob", "10:00", "10:30")

	_, err := e.svc.CancelAppointment(ctx, a.ID, "alice", "")
	s := stateOf(t, err)
	if s.Kind != schedule.InsufficientCancelNotice || s.RequiredMinutes != 1440 || s.ActualMinutes != 600 {
		t.Fatalf("expected 1440/600 notice error, got %+v", s)
	}

	// relaxing the profile later does not change the booked snapshot
	p.CancelNoticeHours = 0
	e.setProfile(t, "bob", p)
	_, err = e.svc.CancelAppointment(ctx, a.ID, "alice", "")
	if s := stateOf(t, err); s.Kind != schedule.InsufficientCancelNotice {
		t.Fatalf("snapshot should still apply, got %+v", s)
	}
}

func TestAutoCompletionIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")
	e.now.Set(at("10:31"))

	for range 2 {
		got, err := e.svc.GetAppointment(ctx, a.ID, "alice")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != model.StatusCompleted {
			t.Fatalf("expected completed, got %s", got.Status)
		}
	}
	list, err := e.svc.ListAppointments(ctx, "bob", monday, monday.AddDate(0, 0, 1))
	if err != nil || len(list) != 1 || list[0].Status != model.StatusCompleted {
		t.Fatalf("list: %v %v", list, err)
	}
	if n, _ := e.svc.CompleteOverdue(ctx); n != 0 {
		t.Errorf("sweep should find nothing left, completed %d", n)
	}

	// one completion event per participant, once
	if got := e.pub.count(model.EventAppointmentCompleted); got != 2 {
		t.Fatalf("expected 2 completion events, got %d", got)
	}
}

func TestCompleteOverdueSweep(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.book(t, "alice", "bob", "10:00", "10:30")
	e.book(t, "carol", "bob", "11:00", "11:30")
	e.now.Set(at("11:00"))

	n, err := e.svc.CompleteOverdue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 completed, got %d (%v)", n, err)
	}
	e.now.Set(at("12:00"))
	if n, _ := e.svc.CompleteOverdue(ctx); n != 1 {
		t.Fatalf("expected second appointment completed, got %d", n)
	}
	if n, _ := e.svc.CompleteOverdue(ctx); n != 0 {
		t.Fatalf("sweep must be idempotent, got %d", n)
	}
}

func TestCompleteOverdueWaitsForInFlightUpdate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")
	e.now.Set(at("11:00"))

	read := make(chan struct{})
	held := make(chan error, 1)
	go func() {
		held <- e.repo.Atomic(ctx, []string{"alice", "bob"}, func(tx store.Repository) error {
			cur, err := tx.GetAppointment(ctx, a.ID)
			close(read)
			if err != nil {
				return err
			}
			time.Sleep(50 * time.Millisecond)
			cur.Title = "Renamed"
			return tx.UpdateAppointment(ctx, cur)
		})
	}()

	<-read
	n, err := e.svc.CompleteOverdue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 completed, got %d (%v)", n, err)
	}
	if err := <-held; err != nil {
		t.Fatal(err)
	}

	got, err := e.repo.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusCompleted || got.Title != "Renamed" {
		t.Errorf("expected completed and renamed, got %s %q", got.Status, got.Title)
	}
	if c := e.pub.count(model.EventAppointmentCompleted); c != 2 {
		t.Errorf("expected one completion event per participant, got %d", c)
	}
}

func TestSendRemindersOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.book(t, "alice", "bob", "10:00", "10:30")

	e.now.Set(at("09:44"))
	if n, _ := e.svc.SendReminders(ctx); n != 0 {
		t.Fatalf("too early, sent %d", n)
	}
	e.now.Set(at("09:45"))
	if n, _ := e.svc.SendReminders(ctx); n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}
	e.now.Set(at("09:50"))
	if n, _ := e.svc.SendReminders(ctx); n != 0 {
		t.Fatalf("reminder sent twice")
	}
	if got := e.pub.count(model.EventAppointmentReminder); got != 2 {
		t.Fatalf("expected a reminder for each participant, got %d", got)
	}
}

func TestBufferEnforcementToggle(t *testing.T) {
	t.Run("off", func(t *testing.T) {
		e := setup(t)
		e.book(t, "alice", "bob", "10:00", "10:30")
		e.book(t, "carol", "bob", "10:30", "11:00")
	})
	t.Run("on", func(t *testing.T) {
		e := setup(t, func(o *service.Options) { o.EnforceBufferOnCreate = true })
		a := e.book(t, "alice", "bob", "10:00", "10:30")
		_, err := e.svc.CreateAppointment(context.Background(), "carol", service.CreateRequest{
			RecipientID: "bob", Start: at("10:30"), End: at("11:00"),
		})
		c := conflictOf(t, err)
		if c.Kind != schedule.BufferViolation || c.AppointmentID != a.ID {
			t.Fatalf("expected BufferViolation on %s, got %+v", a.ID, c)
		}
		e.book(t, "carol", "bob", "10:45", "11:15")
	})
}

func TestAttendanceAndRating(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.book(t, "alice", "bob", "10:00", "10:30")

	_, err := e.svc.RateAppointment(ctx, a.ID, "alice", 5, "")
	var v *schedule.ValidationError
	if !errors.As(err, &v) || v.Reason != schedule.ReasonNotRateable {
		t.Fatalf("expected NotRateable before completion, got %v", err)
	}

	if _, err := e.svc.RecordAttendance(ctx, a.ID, "alice"); err != nil {
		t.Fatalf("attendance: %v", err)
	}
	e.now.Set(at("11:00"))
	got, err := e.svc.RecordAttendance(ctx, a.ID, "bob")
	if err != nil {
		t.Fatalf("attendance after end: %v", err)
	}
	if got.Status != model.StatusCompleted || len(got.AttendedBy) != 2 {
		t.Fatalf("unexpected %+v", got)
	}

	if _, err := e.svc.RateAppointment(ctx, a.ID, "bob", 3, "ok"); err != nil {
		t.Fatalf("rate: %v", err)
	}
	got, err = e.svc.RateAppointment(ctx, a.ID, "bob", 5, "great")
	if err != nil {
		t.Fatalf("re-rate: %v", err)
	}
	if len(got.Ratings) != 1 || got.Ratings[0].Rating != 5 || got.Ratings[0].Feedback != "great" {
		t.Fatalf("last rating should win: %+v", got.Ratings)
	}
	if _, err := e.svc.RateAppointment(ctx, a.ID, "bob", 6, ""); !errors.As(err, &v) || v.Reason != schedule.ReasonInvalidRating {
		t.Fatalf("expected InvalidRating, got %v", err)
	}
	if got := e.pub.count(model.EventAppointmentCompleted); got != 2 {
		t.Errorf("expected completion events once, got %d", got)
	}
}

func TestGetAppointmentHidesFromOthers(t *testing.T) {
	e := setup(t)
	a := e.book(t, "alice", "bob", "10:00", "10:30")
	_, err := e.svc.GetAppointment(context.Background(), a.ID, "carol")
	var nf *schedule.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != schedule.AppointmentNotFound {
		t.Fatalf("expected AppointmentNotFound, got %v", err)
	}
}

func TestPublishFailureDoesNotFailBooking(t *testing.T) {
	e := setup(t)
	e.pub.err = errors.New("broker down")
	a := e.book(t, "alice", "bob", "10:00", "10:30")
	if _, err := e.repo.GetAppointment(context.Background(), a.ID); err != nil {
		t.Fatalf("booking should be committed: %v", err)
	}
}

func TestGetAvailableSlots(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	if _, err := e.svc.GetAvailableSlots(ctx, "bob", "07/01/2030"); err == nil {
		t.Fatal("expected invalid date error")
	}
	slots, err := e.svc.GetAvailableSlots(ctx, "bob", "2030-01-06")
	if err != nil || len(slots) != 0 {
		t.Fatalf("sunday should be empty, got %v %v", slots, err)
	}
	slots, err = e.svc.GetAvailableSlots(ctx, "dave", "2030-01-07")
	if err != nil || len(slots) != 16 {
		t.Fatalf("default profile should give 16 slots, got %d %v", len(slots), err)
	}
	if _, err := e.svc.GetAvailableSlots(ctx, "zed", "2030-01-07"); err == nil {
		t.Fatal("expected unknown user error")
	}
}

func TestUpdateProfile(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	p, err := e.svc.UpdateProfile(ctx, "dave", schedule.ProfilePatch{MaxPerDay: ptr(50), BufferMinutes: ptr(5)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.MaxPerDay != 20 || p.BufferMinutes != 5 {
		t.Fatalf("unexpected profile %+v", p)
	}
	stored, _ := e.svc.GetProfile(ctx, "dave")
	if stored.MaxPerDay != 20 {
		t.Errorf("profile not saved: %+v", stored)
	}

	_, err = e.svc.UpdateProfile(ctx, "dave", schedule.ProfilePatch{StartTime: ptr(model.MustTimeOfDay("18:00"))})
	var v *schedule.ValidationError
	if !errors.As(err, &v) || v.Reason != schedule.ReasonInvalidProfile {
		t.Fatalf("expected InvalidProfile, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
