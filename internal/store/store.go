package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"appointment-scheduler/internal/model"
)

// ErrNotFound is returned when a user or appointment does not exist.
var ErrNotFound = errors.New("store: not found")

// Repository is the persistence contract of the scheduling service.
type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	SaveProfile(ctx context.Context, userID string, p model.AvailabilityProfile) error

	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, a *model.Appointment) error

	// ListActive returns non-terminal appointments involving any of userIDs
	// that overlap [from, to).
	ListActive(ctx context.Context, userIDs []string, from, to time.Time) ([]model.Appointment, error)
	// ListForUser returns every appointment of userID overlapping [from, to),
	// ordered by start time.
	ListForUser(ctx context.Context, userID string, from, to time.Time) ([]model.Appointment, error)

	// CompleteIfActive flips a non-terminal appointment to completed and
	// reports whether this call made the change.
	CompleteIfActive(ctx context.Context, id string, at time.Time) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error)
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error)
	// MarkReminded sets the reminded flag once and reports whether this call set it.
	MarkReminded(ctx context.Context, id string) (bool, error)

	// Atomic runs fn while holding an exclusive lock for every id in keys.
	// Writes made through the Repository handed to fn commit together.
	Atomic(ctx context.Context, keys []string, fn func(Repository) error) error
}

//go:embed migrations/*.sql
var migrations embed.FS

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres implementation of Repository.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.q.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Atomic(ctx context.Context, keys []string, fn func(Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// sorted so two transactions never wait on each other in opposite order
	for _, k := range lockOrder(keys) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return fmt.Errorf("lock %s: %w", k, err)
		}
	}

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockOrder(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
