package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
)

// GetAvailableSlots lists the free slots of ownerID on date (YYYY-MM-DD,
// read in the owner's timezone), in start order.
func (s *Service) GetAvailableSlots(ctx context.Context, ownerID, date string) ([]schedule.Slot, error) {
	log := s.logger(ctx, "GetAvailableSlots").With("owner_id", ownerID, "date", date)

	u, err := s.user(ctx, s.repo, ownerID)
	if err != nil {
		return nil, s.fail(log, err, "slots failed")
	}
	p := profileOf(u)
	day, err := time.ParseInLocation(time.DateOnly, date, p.Location())
	if err != nil {
		return nil, s.fail(log, schedule.Invalid(schedule.ReasonInvalidDate, "date", "expected YYYY-MM-DD"), "slots rejected")
	}

	buffer := time.Duration(p.BufferMinutes) * time.Minute
	existing, err := s.repo.ListActive(ctx, []string{ownerID}, day.Add(-buffer), day.AddDate(0, 0, 1))
	if err != nil {
		return nil, s.fail(log, fmt.Errorf("list active appointments: %w", err), "slots failed")
	}

	slots := slices.Collect(schedule.EnumerateSlots(p, day, existing))
	if slots == nil {
		slots = []schedule.Slot{}
	}
	log.Debug("slots computed", "count", len(slots))
	return slots, nil
}

// GetProfile returns userID's availability, or the default profile when the
// user never configured one.
func (s *Service) GetProfile(ctx context.Context, userID string) (model.AvailabilityProfile, error) {
	log := s.logger(ctx, "GetProfile").With("user_id", userID)
	u, err := s.user(ctx, s.repo, userID)
	if err != nil {
		return model.AvailabilityProfile{}, s.fail(log, err, "get profile failed")
	}
	return profileOf(u), nil
}

// UpdateProfile applies patch to userID's profile. Existing appointments keep
// the snapshot taken when they were booked.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch schedule.ProfilePatch) (model.AvailabilityProfile, error) {
	log := s.logger(ctx, "UpdateProfile").With("user_id", userID)
	u, err := s.user(ctx, s.repo, userID)
	if err != nil {
		return model.AvailabilityProfile{}, s.fail(log, err, "update profile failed")
	}
	next, err := schedule.ApplyProfilePatch(profileOf(u), patch)
	if err != nil {
		return model.AvailabilityProfile{}, s.fail(log, err, "update profile rejected")
	}
	if err := s.repo.SaveProfile(ctx, userID, next); err != nil {
		return model.AvailabilityProfile{}, s.fail(log, fmt.Errorf("save profile: %w", err), "update profile failed")
	}
	log.Info("profile updated")
	return next, nil
}
