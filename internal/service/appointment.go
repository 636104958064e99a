package service

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
	"appointment-scheduler/internal/store"
)

type CreateRequest struct {
	RecipientID string            `json:"recipientId"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	MeetingType model.MeetingType `json:"meetingType,omitempty"`
}

// Patch holds the fields an update may change. Nil means unchanged.
// Reason accompanies a move to declined or cancelled.
type Patch struct {
	Status      *model.Status      `json:"status,omitempty"`
	Start       *time.Time         `json:"start,omitempty"`
	End         *time.Time         `json:"end,omitempty"`
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	MeetingType *model.MeetingType `json:"meetingType,omitempty"`
	Reason      *string            `json:"reason,omitempty"`
}

func (p Patch) editsFields() bool {
	return p.Start != nil || p.End != nil || p.Title != nil || p.Description != nil || p.MeetingType != nil
}

func (p Patch) empty() bool {
	return !p.editsFields() && p.Status == nil
}

// CreateAppointment books req.RecipientID for creatorID. The slot must be
// legal under the recipient's profile, free for both participants and within
// both participants' daily capacity.
func (s *Service) CreateAppointment(ctx context.Context, creatorID string, req CreateRequest) (*model.Appointment, error) {
	log := s.logger(ctx, "CreateAppointment").With("creator_id", creatorID, "recipient_id", req.RecipientID)

	if req.RecipientID == "" {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonMissingField, "recipientId", "recipient is required"), "create rejected")
	}
	if req.RecipientID == creatorID {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonSelfBooking, "recipientId", "cannot book yourself"), "create rejected")
	}
	mt := req.MeetingType
	if mt == "" {
		mt = model.MeetingVideoCall
	}
	if !mt.Valid() {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonInvalidMeetingType, "meetingType", string(mt)), "create rejected")
	}

	recipient, err := s.user(ctx, s.repo, req.RecipientID)
	if err != nil {
		return nil, s.fail(log, err, "create rejected")
	}
	creator, err := s.user(ctx, s.repo, creatorID)
	if err != nil {
		return nil, s.fail(log, err, "create rejected")
	}
	rp, cp := profileOf(recipient), profileOf(creator)

	now := s.now()
	if err := schedule.IsLegalSlot(rp, req.Start, req.End, now); err != nil {
		return nil, s.fail(log, err, "create rejected")
	}

	a := &model.Appointment{
		ID:                   s.newID(),
		CreatorID:            creatorID,
		RecipientID:          req.RecipientID,
		StartTime:            req.Start,
		EndTime:              req.End,
		Status:               model.StatusPending,
		Title:                strings.TrimSpace(req.Title),
		Description:          strings.TrimSpace(req.Description),
		MeetingType:          mt,
		AttendedBy:           []string{},
		Ratings:              []model.Rating{},
		AvailabilitySnapshot: schedule.Snapshot(rp),
		ReminderMinutes:      rp.DefaultReminderTime,
	}
	cand := schedule.Candidate{CreatorID: creatorID, RecipientID: req.RecipientID, Start: req.Start, End: req.End}

	err = s.repo.Atomic(ctx, []string{creatorID, req.RecipientID}, func(tx store.Repository) error {
		if err := s.checkSlot(ctx, tx, cand, cp, rp); err != nil {
			return err
		}
		if err := tx.CreateAppointment(ctx, a); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(log, err, "create failed")
	}

	log.Info("appointment created", "appointment_id", a.ID, "start", a.StartTime, "end", a.EndTime)
	s.emit(ctx, log, createdEvents(a, now)...)
	return a, nil
}

// checkSlot runs the overlap, capacity and optional buffer checks against
// the participants' active appointments. Call it inside their atomic section.
func (s *Service) checkSlot(ctx context.Context, tx store.Repository, c schedule.Candidate, creator, recipient model.AvailabilityProfile) error {
	existing, err := tx.ListActive(ctx, []string{c.CreatorID, c.RecipientID},
		c.Start.Add(-conflictWindow), c.End.Add(conflictWindow))
	if err != nil {
		return fmt.Errorf("list active appointments: %w", err)
	}
	if err := schedule.DetectConflict(c, existing); err != nil {
		return err
	}
	if err := schedule.CheckCapacity(schedule.PartyCreator, c.CreatorID, creator, c, existing); err != nil {
		return err
	}
	if err := schedule.CheckCapacity(schedule.PartyRecipient, c.RecipientID, recipient, c, existing); err != nil {
		return err
	}
	if s.enforceBuffer {
		if err := schedule.CheckBuffer(c.RecipientID, recipient, c, existing); err != nil {
			return err
		}
		if err := schedule.CheckBuffer(c.CreatorID, creator, c, existing); err != nil {
			return err
		}
	}
	return nil
}

// GetAppointment returns the appointment if actorID takes part in it.
// Others get NotFound so ids cannot be probed.
func (s *Service) GetAppointment(ctx context.Context, id, actorID string) (*model.Appointment, error) {
	log := s.logger(ctx, "GetAppointment").With("appointment_id", id, "actor_id", actorID)
	a, err := s.appointment(ctx, s.repo, id)
	if err != nil {
		return nil, s.fail(log, err, "get failed")
	}
	if !a.IsParticipant(actorID) {
		return nil, s.fail(log, &schedule.NotFoundError{Kind: schedule.AppointmentNotFound, ID: id}, "get failed")
	}
	if err := s.materialize(ctx, log, a); err != nil {
		return nil, s.fail(log, err, "get failed")
	}
	return a, nil
}

// ListAppointments returns actorID's appointments overlapping [from, to).
// Zero bounds default to one month back and three months ahead.
func (s *Service) ListAppointments(ctx context.Context, actorID string, from, to time.Time) ([]model.Appointment, error) {
	log := s.logger(ctx, "ListAppointments").With("actor_id", actorID)
	if from.IsZero() {
		from = s.now().AddDate(0, -1, 0)
	}
	if to.IsZero() {
		to = from.AddDate(0, 4, 0)
	}
	if !to.After(from) {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonInvalidInterval, "to", "must be after from"), "list rejected")
	}

	list, err := s.repo.ListForUser(ctx, actorID, from, to)
	if err != nil {
		return nil, s.fail(log, fmt.Errorf("list appointments: %w", err), "list failed")
	}
	for i := range list {
		if err := s.materialize(ctx, log, &list[i]); err != nil {
			log.Error("auto-complete failed", "appointment_id", list[i].ID, "error", err)
		}
	}
	if list == nil {
		list = []model.Appointment{}
	}
	return list, nil
}

// UpdateAppointment applies patch on behalf of actorID. Time changes are
// re-validated against availability, conflicts and capacity; a status change
// goes through the lifecycle rules.
func (s *Service) UpdateAppointment(ctx context.Context, id, actorID string, patch Patch) (*model.Appointment, error) {
	log := s.logger(ctx, "UpdateAppointment").With("appointment_id", id, "actor_id", actorID)

	if patch.MeetingType != nil && !patch.MeetingType.Valid() {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonInvalidMeetingType, "meetingType", string(*patch.MeetingType)), "update rejected")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonInvalidStatus, "status", string(*patch.Status)), "update rejected")
	}

	a, err := s.mutate(ctx, log, id, actorID, func(tx store.Repository, a *model.Appointment, now time.Time) ([]model.Event, error) {
		if patch.empty() {
			return nil, nil
		}
		if patch.editsFields() && a.Status.Terminal() {
			return nil, &schedule.StateError{Kind: schedule.AlreadyTerminal, From: a.Status}
		}

		start, end := a.StartTime, a.EndTime
		if patch.Start != nil {
			start = *patch.Start
		}
		if patch.End != nil {
			end = *patch.End
		}
		timeChanged := !start.Equal(a.StartTime) || !end.Equal(a.EndTime)

		prev := a.Status
		if patch.Status != nil {
			reason := ""
			if patch.Reason != nil {
				reason = *patch.Reason
			}
			if err := schedule.Transition(a, *patch.Status, actorID, reason, now); err != nil {
				return nil, err
			}
		}

		if timeChanged {
			if a.Status.Terminal() {
				return nil, &schedule.StateError{Kind: schedule.AlreadyTerminal, From: a.Status}
			}
			if err := s.checkReschedule(ctx, tx, a, start, end, now); err != nil {
				return nil, err
			}
			a.StartTime, a.EndTime = start, end
		}
		if patch.Title != nil {
			a.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			a.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.MeetingType != nil {
			a.MeetingType = *patch.MeetingType
		}
		a.UpdatedAt = now

		switch {
		case a.Status == prev:
			return updatedEvents(a, actorID, now), nil
		case a.Status == model.StatusCancelled:
			return cancelledEvents(a, actorID, now), nil
		default:
			return statusEvents(a, actorID, now), nil
		}
	})
	if err != nil {
		return nil, s.fail(log, err, "update failed")
	}
	log.Info("appointment updated", "status", a.Status)
	return a, nil
}

func (s *Service) checkReschedule(ctx context.Context, tx store.Repository, a *model.Appointment, start, end, now time.Time) error {
	recipient, err := s.user(ctx, tx, a.RecipientID)
	if err != nil {
		return err
	}
	creator, err := s.user(ctx, tx, a.CreatorID)
	if err != nil {
		return err
	}
	rp, cp := profileOf(recipient), profileOf(creator)
	if err := schedule.IsLegalSlot(rp, start, end, now); err != nil {
		return err
	}
	return s.checkSlot(ctx, tx, schedule.Candidate{
		ID:          a.ID,
		CreatorID:   a.CreatorID,
		RecipientID: a.RecipientID,
		Start:       start,
		End:         end,
	}, cp, rp)
}

// CancelAppointment moves the appointment to cancelled. Only the creator may
// cancel, and only with the notice frozen into the appointment at booking.
func (s *Service) CancelAppointment(ctx context.Context, id, actorID, reason string) (*model.Appointment, error) {
	log := s.logger(ctx, "CancelAppointment").With("appointment_id", id, "actor_id", actorID)
	a, err := s.mutate(ctx, log, id, actorID, func(_ store.Repository, a *model.Appointment, now time.Time) ([]model.Event, error) {
		if err := schedule.Transition(a, model.StatusCancelled, actorID, reason, now); err != nil {
			return nil, err
		}
		return cancelledEvents(a, actorID, now), nil
	})
	if err != nil {
		return nil, s.fail(log, err, "cancel failed")
	}
	log.Info("appointment cancelled")
	return a, nil
}

func (s *Service) RecordAttendance(ctx context.Context, id, userID string) (*model.Appointment, error) {
	log := s.logger(ctx, "RecordAttendance").With("appointment_id", id, "actor_id", userID)
	a, err := s.mutate(ctx, log, id, userID, func(_ store.Repository, a *model.Appointment, now time.Time) ([]model.Event, error) {
		return nil, schedule.RecordAttendance(a, userID, now)
	})
	if err != nil {
		return nil, s.fail(log, err, "attendance failed")
	}
	return a, nil
}

func (s *Service) RateAppointment(ctx context.Context, id, userID string, rating int, feedback string) (*model.Appointment, error) {
	log := s.logger(ctx, "RateAppointment").With("appointment_id", id, "actor_id", userID)
	a, err := s.mutate(ctx, log, id, userID, func(_ store.Repository, a *model.Appointment, now time.Time) ([]model.Event, error) {
		return nil, schedule.Rate(a, userID, rating, feedback, now)
	})
	if err != nil {
		return nil, s.fail(log, err, "rating failed")
	}
	log.Info("appointment rated", "rating", rating)
	return a, nil
}

// mutate re-reads appointment id inside its participants' atomic section,
// applies fn to the fresh copy and persists it. Events returned by fn are
// published after the section commits.
func (s *Service) mutate(ctx context.Context, log *slog.Logger, id, actorID string,
	fn func(tx store.Repository, a *model.Appointment, now time.Time) ([]model.Event, error),
) (*model.Appointment, error) {
	cur, err := s.appointment(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !cur.IsParticipant(actorID) {
		return nil, &schedule.AuthorizationError{Kind: schedule.NotAParticipant}
	}
	if err := s.materialize(ctx, log, cur); err != nil {
		return nil, err
	}

	var (
		out *model.Appointment
		evs []model.Event
	)
	err = s.repo.Atomic(ctx, []string{cur.CreatorID, cur.RecipientID}, func(tx store.Repository) error {
		a, err := s.appointment(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now()

		var completed []model.Event
		if !a.Status.Terminal() && !now.Before(a.EndTime) {
			ok, err := tx.CompleteIfActive(ctx, a.ID, now)
			if err != nil {
				return fmt.Errorf("complete appointment %s: %w", a.ID, err)
			}
			schedule.AutoComplete(a, now)
			if ok {
				completed = completedEvents(a, now)
			}
		}

		before := a.Clone()
		changes, err := fn(tx, a, now)
		if err != nil {
			return err
		}
		evs = append(completed, changes...)
		out = a
		if unchanged(before, a) {
			return nil
		}
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("update appointment %s: %w", a.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, log, evs...)
	return out, nil
}

func unchanged(a, b *model.Appointment) bool {
	return reflect.DeepEqual(a, b)
}

// materialize persists the auto-completion of an appointment read after its
// end. Only the caller whose conditional write lands publishes the event.
func (s *Service) materialize(ctx context.Context, log *slog.Logger, a *model.Appointment) error {
	now := s.now()
	if a.Status.Terminal() || now.Before(a.EndTime) {
		return nil
	}
	ok, err := s.completeLocked(ctx, a, now)
	if err != nil {
		return fmt.Errorf("complete appointment %s: %w", a.ID, err)
	}
	if !ok {
		fresh, err := s.appointment(ctx, s.repo, a.ID)
		if err != nil {
			return err
		}
		*a = *fresh
		return nil
	}
	schedule.AutoComplete(a, now)
	log.Info("appointment auto-completed", "appointment_id", a.ID)
	s.emit(ctx, log, completedEvents(a, now)...)
	return nil
}

// completeLocked completes a under its participants' locks, so it cannot land
// between the read and the write of a concurrent update.
func (s *Service) completeLocked(ctx context.Context, a *model.Appointment, now time.Time) (bool, error) {
	var ok bool
	err := s.repo.Atomic(ctx, []string{a.CreatorID, a.RecipientID}, func(tx store.Repository) error {
		var err error
		ok, err = tx.CompleteIfActive(ctx, a.ID, now)
		return err
	})
	return ok, err
}
