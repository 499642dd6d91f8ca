package repository

import (
	"context"
	"time"

	"github.com/iliyamo/medconcierge/internal/model"
)

// UpsertPasswordReset replaces any earlier code of the user.
func (q *Queries) UpsertPasswordReset(ctx context.Context, userID uint64, codeHash string, expiresAt time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO password_resets (user_id, code_hash, expires_at) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE code_hash=VALUES(code_hash), expires_at=VALUES(expires_at), attempts=0, created_at=UTC_TIMESTAMP(3)`,
		userID, codeHash, expiresAt)
	return mapError(err)
}

func (q *Queries) GetPasswordResetForUpdate(ctx context.Context, userID uint64) (model.PasswordReset, error) {
	var p model.PasswordReset
	err := q.db.QueryRowContext(ctx,
		"SELECT user_id, code_hash, expires_at, attempts, created_at FROM password_resets WHERE user_id=? FOR UPDATE",
		userID).Scan(&p.UserID, &p.CodeHash, &p.ExpiresAt, &p.Attempts, &p.CreatedAt)
	return p, mapError(err)
}

func (q *Queries) DeletePasswordReset(ctx context.Context, userID uint64) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM password_resets WHERE user_id=?", userID)
	return mapError(err)
}

// IncrementResetAttempts records one failed code check.
func (q *Queries) IncrementResetAttempts(ctx context.Context, userID uint64) error {
	_, err := q.db.ExecContext(ctx, "UPDATE password_resets SET attempts=attempts+1 WHERE user_id=?", userID)
	return mapError(err)
}
