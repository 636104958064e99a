package store

import (
	"context"

	"appointment-scheduler/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO users (id, email, name, availability) VALUES ($1,$2,$3,$4)`,
		u.ID, u.Email, u.Name, u.Availability,
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := s.q.QueryRow(ctx,
		`SELECT id, email, name, availability, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Availability, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID string, p model.AvailabilityProfile) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE users SET availability = $1, updated_at = NOW() WHERE id = $2`,
		p, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
