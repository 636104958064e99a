// Package events delivers scheduling events to NATS, connected websocket
// clients and the log.
package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"appointment-scheduler/internal/model"
)

type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Subject maps an event type to a NATS subject, e.g.
// AppointmentStatusChanged -> <prefix>.appointment.status_changed.
func Subject(prefix string, t model.EventType) string {
	name := strings.TrimPrefix(string(t), "Appointment")
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return prefix + ".appointment." + b.String()
}

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConnectionRegistry pushes an event to every live connection of a user.
type ConnectionRegistry interface {
	Publish(userID string, ev model.Event) error
}

// RegistryPublisher routes events to their recipient's connections.
type RegistryPublisher struct {
	Registry ConnectionRegistry
}

func (p RegistryPublisher) Publish(_ context.Context, ev model.Event) error {
	if ev.RecipientID == "" {
		return nil
	}
	return p.Registry.Publish(ev.RecipientID, ev)
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev model.Event) error {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "event",
		"event_type", ev.Type,
		"appointment_id", ev.AppointmentID,
		"recipient_id", ev.RecipientID,
		"sender_id", ev.SenderID,
	)
	return nil
}
