package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/medconcierge/internal/model"
)

const userColumns = "id,email,phone,password_hash,first_name,last_name,role,is_active,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (model.User, error) {
	var u model.User
	err := r.Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, mapError(err)
}

// FindUserByEmailOrPhone returns the user matching either key. When the email
// and the phone belong to two different users the email match wins.
func (q *Queries) FindUserByEmailOrPhone(ctx context.Context, email, phone string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? OR phone=? ORDER BY (email=?) DESC, id LIMIT 1 FOR UPDATE",
		email, phone, email)
	return scanUser(row)
}

func (q *Queries) GetUserByPhone(ctx context.Context, phone string) (model.User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE phone=? LIMIT 1", phone)
	return scanUser(row)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id uint64) (model.User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// CreateUser inserts u (PasswordHash must already be set) and returns its ID.
// A unique-key race on email or phone surfaces as ErrDuplicate.
func (q *Queries) CreateUser(ctx context.Context, u model.User) (uint64, error) {
	if u.Role == "" {
		u.Role = model.RoleClient
	}
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO users (email, phone, password_hash, first_name, last_name, role, is_active) VALUES (?,?,?,?,?,?,?)",
		strings.ToLower(strings.TrimSpace(u.Email)), u.Phone, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.IsActive)
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (q *Queries) UpdateUserNames(ctx context.Context, id uint64, firstName, lastName string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE users SET first_name=?, last_name=? WHERE id=?", firstName, lastName, id)
	return mapError(err)
}

func (q *Queries) UpdateUserPassword(ctx context.Context, id uint64, hash string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", hash, id)
	return mapError(err)
}

// UpsertAdmin creates or refreshes the bootstrap ADMIN keyed by email.
// A phone that belongs to another account fails with ErrDuplicate instead
// of promoting that account.
func (q *Queries) UpsertAdmin(ctx context.Context, u model.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	existing, err := q.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		_, err = q.db.ExecContext(ctx,
			"UPDATE users SET role='ADMIN', is_active=1, first_name=?, last_name=? WHERE id=?",
			u.FirstName, u.LastName, existing.ID)
		return mapError(err)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	owner, err := q.GetUserByPhone(ctx, u.Phone)
	switch {
	case err == nil:
		return fmt.Errorf("admin phone is used by user %d: %w", owner.ID, ErrDuplicate)
	case !errors.Is(err, ErrNotFound):
		return err
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO users (email, phone, password_hash, first_name, last_name, role, is_active)
		 VALUES (?,?,?,?,?,'ADMIN',1)`,
		email, u.Phone, u.PasswordHash, u.FirstName, u.LastName)
	return mapError(err)
}
