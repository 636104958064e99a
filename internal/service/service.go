// Package service orchestrates availability evaluation, conflict detection
// and the appointment lifecycle on top of a store.Repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"appointment-scheduler/internal/logging"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
	"appointment-scheduler/internal/store"
)

// Publisher delivers domain events. Delivery and retry are its concern.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// conflictWindow bounds the existing-appointment query around a candidate.
// Wide enough to cover the candidate's calendar day in any timezone.
const conflictWindow = 48 * time.Hour

const defaultSweepBatch = 100

type Options struct {
	// EnforceBufferOnCreate rejects bookings that leave less than the
	// owner's bufferMinutes to a neighbouring appointment.
	EnforceBufferOnCreate bool
	SweepBatch            int

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

type Service struct {
	repo          store.Repository
	pub           Publisher
	log           *slog.Logger
	now           func() time.Time
	newID         func() string
	enforceBuffer bool
	batch         int
}

func New(repo store.Repository, pub Publisher, opts Options) *Service {
	s := &Service{
		repo:          repo,
		pub:           pub,
		log:           opts.Logger,
		now:           opts.Now,
		newID:         opts.NewID,
		enforceBuffer: opts.EnforceBufferOnCreate,
		batch:         opts.SweepBatch,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.batch <= 0 {
		s.batch = defaultSweepBatch
	}
	return s
}

func (s *Service) logger(ctx context.Context, op string) *slog.Logger {
	return logging.Or(ctx, s.log).With("service", "scheduling", "operation", op)
}

// fail logs err at a level matching its kind and returns it unchanged.
func (s *Service) fail(log *slog.Logger, err error, msg string, args ...any) error {
	args = append(args, "error", err, "error_kind", schedule.ErrorKind(err))
	if schedule.IsUserFacing(err) {
		log.Info(msg, args...)
	} else {
		log.Error(msg, args...)
	}
	return err
}

func (s *Service) user(ctx context.Context, repo store.Repository, id string) (*model.User, error) {
	u, err := repo.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &schedule.NotFoundError{Kind: schedule.UserNotFound, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

func (s *Service) appointment(ctx context.Context, repo store.Repository, id string) (*model.Appointment, error) {
	a, err := repo.GetAppointment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &schedule.NotFoundError{Kind: schedule.AppointmentNotFound, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment %s: %w", id, err)
	}
	return a, nil
}

// profileOf returns the user's stored profile or the default one.
func profileOf(u *model.User) model.AvailabilityProfile {
	if u.Availability == nil {
		return schedule.DefaultProfile()
	}
	return u.Availability.Clone()
}

// emit hands events to the publisher. Failures are logged, never returned:
// the state change they describe is already committed.
func (s *Service) emit(ctx context.Context, log *slog.Logger, evs ...model.Event) {
	if s.pub == nil {
		return
	}
	for _, ev := range evs {
		if err := s.pub.Publish(ctx, ev); err != nil {
			log.Warn("publish event failed",
				"event_type", ev.Type,
				"appointment_id", ev.AppointmentID,
				"recipient_id", ev.RecipientID,
				"error", err,
			)
		}
	}
}
