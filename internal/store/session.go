package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"gitplumbers.app/bridge/core/db"
	"gitplumbers.app/bridge/internal/model"
)

type sessionStore struct {
	conn db.DBTX
}

func newSessionStore(conn db.DBTX) SessionStore {
	return &sessionStore{conn: conn}
}

func (s *sessionStore) Create(ctx context.Context, session *model.Session) error {
	return s.conn.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		session.ID, session.UserID, session.TokenHash, session.ExpiresAt,
	).Scan(&session.CreatedAt)
}

func (s *sessionStore) GetValidByTokenHash(ctx context.Context, tokenHash []byte) (*model.Session, error) {
	var session model.Session
	err := s.conn.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at FROM sessions
		WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash,
	).Scan(&session.ID, &session.UserID, &session.TokenHash, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *sessionStore) DeleteByTokenHash(ctx context.Context, tokenHash []byte) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}
