package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"appointment-scheduler/internal/model"
)

// Memory is an in-process Repository for tests and single-node development.
// Atomic sections serialize on per-key mutexes.
type Memory struct {
	mu    sync.RWMutex
	users map[string]model.User
	appts map[string]*model.Appointment

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]model.User),
		appts: make(map[string]*model.Appointment),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("store: user %s already exists", u.ID)
	}
	now := time.Now()
	c := *u
	if u.Availability != nil {
		p := u.Availability.Clone()
		c.Availability = &p
	}
	c.CreatedAt, c.UpdatedAt = now, now
	m.users[u.ID] = c
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Availability != nil {
		p := u.Availability.Clone()
		u.Availability = &p
	}
	return &u, nil
}

func (m *Memory) SaveProfile(_ context.Context, userID string, p model.AvailabilityProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	c := p.Clone()
	u.Availability = &c
	u.UpdatedAt = time.Now()
	m.users[userID] = u
	return nil
}

func (m *Memory) CreateAppointment(_ context.Context, a *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; ok {
		return fmt.Errorf("store: appointment %s already exists", a.ID)
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.appts[a.ID] = a.Clone()
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok {
		return ErrNotFound
	}
	next := a.Clone()
	// not writable through updates
	next.CreatorID, next.RecipientID = cur.CreatorID, cur.RecipientID
	next.AvailabilitySnapshot = cur.AvailabilitySnapshot
	next.ReminderMinutes, next.Reminded = cur.ReminderMinutes, cur.Reminded
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now()
	a.UpdatedAt = next.UpdatedAt
	m.appts[a.ID] = next
	return nil
}

func (m *Memory) ListActive(_ context.Context, userIDs []string, from, to time.Time) ([]model.Appointment, error) {
	return m.filter(func(a *model.Appointment) bool {
		if a.Status.Terminal() || !a.StartTime.Before(to) || !a.EndTime.After(from) {
			return false
		}
		return slices.Contains(userIDs, a.CreatorID) || slices.Contains(userIDs, a.RecipientID)
	}, byStart, 0), nil
}

func (m *Memory) ListForUser(_ context.Context, userID string, from, to time.Time) ([]model.Appointment, error) {
	return m.filter(func(a *model.Appointment) bool {
		return a.IsParticipant(userID) && a.StartTime.Before(to) && a.EndTime.After(from)
	}, byStart, 0), nil
}

func (m *Memory) CompleteIfActive(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status.Terminal() || a.EndTime.After(at) {
		return false, nil
	}
	a.Status = model.StatusCompleted
	a.UpdatedAt = at
	return true, nil
}

func (m *Memory) ListOverdue(_ context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	return m.filter(func(a *model.Appointment) bool {
		return !a.Status.Terminal() && !a.EndTime.After(now)
	}, func(a, b model.Appointment) int { return a.EndTime.Compare(b.EndTime) }, limit), nil
}

func (m *Memory) ListDueReminders(_ context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	return m.filter(func(a *model.Appointment) bool {
		if a.Status.Terminal() || a.Reminded || a.ReminderMinutes <= 0 || !a.StartTime.After(now) {
			return false
		}
		return !a.StartTime.Add(-time.Duration(a.ReminderMinutes) * time.Minute).After(now)
	}, byStart, limit), nil
}

func (m *Memory) MarkReminded(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Reminded {
		return false, nil
	}
	a.Reminded = true
	return true, nil
}

func (m *Memory) Atomic(_ context.Context, keys []string, fn func(Repository) error) error {
	var held []*sync.Mutex
	for _, k := range lockOrder(keys) {
		l := m.lockFor(k)
		l.Lock()
		held = append(held, l)
	}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()
	return fn(m)
}

func (m *Memory) lockFor(key string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *Memory) filter(keep func(*model.Appointment) bool, order func(a, b model.Appointment) int, limit int) []model.Appointment {
	m.mu.RLock()
	var out []model.Appointment
	for _, a := range m.appts {
		if keep(a) {
			out = append(out, *a.Clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, order)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func byStart(a, b model.Appointment) int {
	if c := a.StartTime.Compare(b.StartTime); c != 0 {
		return c
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}
