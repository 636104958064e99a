package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"appointment-scheduler/internal/model"
)

const appointmentCols = `id, creator_id, recipient_id, title, description, meeting_type,
	start_time, end_time, status, declined_reason, cancel_reason, attended_by, ratings,
	availability_snapshot, reminder_minutes, reminded, created_at, updated_at`

const activeStatuses = `('pending','confirmed','scheduled')`

func (s *Store) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	return s.q.QueryRow(ctx,
		`INSERT INTO appointments (id, creator_id, recipient_id, title, description, meeting_type,
		   start_time, end_time, status, declined_reason, cancel_reason, attended_by, ratings,
		   availability_snapshot, reminder_minutes, reminded)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 RETURNING created_at, updated_at`,
		a.ID, a.CreatorID, a.RecipientID, a.Title, a.Description, a.MeetingType,
		a.StartTime, a.EndTime, a.Status, a.DeclinedReason, a.CancelReason, nonNil(a.AttendedBy), ratingsOf(a),
		a.AvailabilitySnapshot, a.ReminderMinutes, a.Reminded,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	row := s.q.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Store) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := s.q.QueryRow(ctx,
		`UPDATE appointments
		 SET title=$1, description=$2, meeting_type=$3, start_time=$4, end_time=$5, status=$6,
		     declined_reason=$7, cancel_reason=$8, attended_by=$9, ratings=$10, updated_at=NOW()
		 WHERE id=$11
		 RETURNING updated_at`,
		a.Title, a.Description, a.MeetingType, a.StartTime, a.EndTime, a.Status,
		a.DeclinedReason, a.CancelReason, nonNil(a.AttendedBy), ratingsOf(a), a.ID,
	).Scan(&a.UpdatedAt)
	return notFound(err)
}

func (s *Store) ListActive(ctx context.Context, userIDs []string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentCols+`
		 FROM appointments
		 WHERE (creator_id = ANY($1) OR recipient_id = ANY($1))
		   AND status IN `+activeStatuses+`
		   AND start_time < $3
		   AND end_time > $2
		 ORDER BY start_time, id`, userIDs, from, to,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ListForUser(ctx context.Context, userID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentCols+`
		 FROM appointments
		 WHERE (creator_id = $1 OR recipient_id = $1)
		   AND start_time < $3
		   AND end_time > $2
		 ORDER BY start_time, id`, userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) CompleteIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE appointments SET status='completed', updated_at=$2
		 WHERE id=$1 AND status IN `+activeStatuses+` AND end_time <= $2`, id, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentCols+`
		 FROM appointments
		 WHERE status IN `+activeStatuses+` AND end_time <= $1
		 ORDER BY end_time
		 LIMIT $2`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+appointmentCols+`
		 FROM appointments
		 WHERE status IN `+activeStatuses+`
		   AND NOT reminded
		   AND reminder_minutes > 0
		   AND start_time > $1
		   AND start_time - make_interval(mins => reminder_minutes) <= $1
		 ORDER BY start_time
		 LIMIT $2`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) MarkReminded(ctx context.Context, id string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE appointments SET reminded = TRUE WHERE id = $1 AND NOT reminded`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	a := &model.Appointment{}
	err := row.Scan(
		&a.ID, &a.CreatorID, &a.RecipientID, &a.Title, &a.Description, &a.MeetingType,
		&a.StartTime, &a.EndTime, &a.Status, &a.DeclinedReason, &a.CancelReason, &a.AttendedBy, &a.Ratings,
		&a.AvailabilitySnapshot, &a.ReminderMinutes, &a.Reminded, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func ratingsOf(a *model.Appointment) []model.Rating {
	if a.Ratings == nil {
		return []model.Rating{}
	}
	return a.Ratings
}
