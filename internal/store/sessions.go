package store

import (
	"context"
	"database/sql"

	"ticketing-service/internal/models"
)

// CreateSession inserts a new refresh-token lineage
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, fingerprint, rotation_version)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		session.ID, session.UserID, session.Fingerprint, session.RotationVersion)
	return row.Scan(&session.CreatedAt, &session.UpdatedAt)
}

// GetSessionByID retrieves a session lineage by ID
func (s *Store) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.GetContext(ctx, &session, "SELECT * FROM sessions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RotateSession atomically replaces the current fingerprint with a new one,
// conditioned on the presented fingerprint still being current and the
// session not being revoked. Of two concurrent rotations bearing the same
// token, exactly one matches the predicate; the loser gets
// ErrStaleFingerprint and the version advances by exactly one.
func (s *Store) RotateSession(ctx context.Context, id, oldFingerprint, newFingerprint string) (int64, error) {
	var version int64
	err := s.db.GetContext(ctx, &version, `
		UPDATE sessions
		SET fingerprint = $1, rotation_version = rotation_version + 1, updated_at = NOW()
		WHERE id = $2 AND fingerprint = $3 AND revoked_at IS NULL
		RETURNING rotation_version`,
		newFingerprint, id, oldFingerprint)
	if err == sql.ErrNoRows {
		return 0, ErrStaleFingerprint
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// RevokeSession revokes a single session lineage
func (s *Store) RevokeSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET revoked_at = NOW(), updated_at = NOW() WHERE id = $1 AND revoked_at IS NULL",
		id)
	return err
}

// RevokeUserSessions revokes every active lineage for a user (logout)
func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET revoked_at = NOW(), updated_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL",
		userID)
	return err
}
