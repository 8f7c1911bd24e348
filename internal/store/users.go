package store

import (
	"context"
	"time"
)

// CreateUser inserts u. A duplicate username or email returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *User) (*User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(u).Exec(ctx); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	u := new(User)
	if err := s.db.NewSelect().Model(u).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := new(User)
	if err := s.db.NewSelect().Model(u).Where("?TableAlias.username = ?", username).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// SetUserActive flips the active flag of a user.
func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
