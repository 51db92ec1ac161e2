package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"gitplumbers.app/bridge/core/db"
	"gitplumbers.app/bridge/internal/model"
)

type userStore struct {
	conn db.DBTX
}

func newUserStore(conn db.DBTX) UserStore {
	return &userStore{conn: conn}
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.conn.QueryRow(ctx,
		`SELECT id, name, email, avatar_url, workos_id, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL, &user.WorkOSID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertByWorkOSID inserts the user or refreshes the profile of the row
// with the same WorkOS id. user.ID is replaced by the stored id.
func (s *userStore) UpsertByWorkOSID(ctx context.Context, user *model.User) error {
	return s.conn.QueryRow(ctx, `
		INSERT INTO users (id, name, email, avatar_url, workos_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workos_id) DO UPDATE
			SET name = EXCLUDED.name,
				email = EXCLUDED.email,
				avatar_url = EXCLUDED.avatar_url,
				updated_at = now()
		RETURNING id, created_at, updated_at`,
		user.ID, user.Name, user.Email, user.AvatarURL, user.WorkOSID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}
