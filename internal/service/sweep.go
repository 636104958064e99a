package service

import (
	"context"
	"fmt"

	"appointment-scheduler/internal/schedule"
)

// CompleteOverdue completes active appointments whose end has passed and
// nobody has read since. One failing record does not stop the batch.
func (s *Service) CompleteOverdue(ctx context.Context) (int, error) {
	log := s.logger(ctx, "CompleteOverdue")
	now := s.now()
	due, err := s.repo.ListOverdue(ctx, now, s.batch)
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}

	n := 0
	for i := range due {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		a := &due[i]
		ok, err := s.completeLocked(ctx, a, now)
		if err != nil {
			log.Error("auto-complete failed", "appointment_id", a.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		schedule.AutoComplete(a, now)
		s.emit(ctx, log, completedEvents(a, now)...)
		n++
	}
	if n > 0 {
		log.Info("overdue appointments completed", "count", n)
	}
	return n, nil
}

// SendReminders notifies both participants of appointments entering their
// reminder window. The reminded flag is claimed before publishing, so a
// reminder goes out at most once.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	log := s.logger(ctx, "SendReminders")
	now := s.now()
	due, err := s.repo.ListDueReminders(ctx, now, s.batch)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	n := 0
	for i := range due {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		a := &due[i]
		ok, err := s.repo.MarkReminded(ctx, a.ID)
		if err != nil {
			log.Error("mark reminded failed", "appointment_id", a.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.emit(ctx, log, reminderEvents(a, now)...)
		n++
	}
	if n > 0 {
		log.Info("reminders sent", "count", n)
	}
	return n, nil
}
