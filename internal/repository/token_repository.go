package repository

import (
	"context"
	"database/sql"
	"time"
)

// StoreRefresh inserts a refresh token hash row.
func (q *Queries) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return mapError(err)
}

// ValidateRefresh returns the owner of a non-revoked, non-expired token.
func (q *Queries) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, mapError(err)
	}
	if revokedAt.Valid || !q.now().Before(expiresAt) {
		return 0, ErrNotFound
	}
	return userID, nil
}

func (q *Queries) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(3) WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return mapError(err)
}

// RevokeAllForUser ends every session of a user, e.g. after a password reset.
func (q *Queries) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(3) WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return mapError(err)
}
