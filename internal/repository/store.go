package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/medconcierge/internal/model"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier lists the writes that run inside a unit of work. *Queries
// implements it; services accept it so tests can substitute an in-memory
// fake.
type Querier interface {
	FindUserByEmailOrPhone(ctx context.Context, email, phone string) (model.User, error)
	GetUserByPhone(ctx context.Context, phone string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (uint64, error)
	UpdateUserNames(ctx context.Context, id uint64, firstName, lastName string) error
	UpdateUserPassword(ctx context.Context, id uint64, hash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error

	ResolveReferenceID(ctx context.Context, kind model.LookupKind, code string) (*uint64, error)

	ApplicationNumExists(ctx context.Context, num string) (bool, error)
	CreateApplication(ctx context.Context, a model.Application) (uint64, error)
	AddApplicationServices(ctx context.Context, applicationID uint64, codes []string) (int, error)
	AppendStatusHistory(ctx context.Context, h model.StatusHistory) (uint64, error)
	GetApplicationForUpdate(ctx context.Context, id uint64) (model.Application, error)
	UpdateApplicationStatus(ctx context.Context, id uint64, status model.Status) error

	GetPasswordResetForUpdate(ctx context.Context, userID uint64) (model.PasswordReset, error)
	IncrementResetAttempts(ctx context.Context, userID uint64) error
	DeletePasswordReset(ctx context.Context, userID uint64) error
}

// Queries runs every statement against a DBTX, either the pool or a
// transaction.
type Queries struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Queries { return &Queries{db: db, now: func() time.Time { return time.Now().UTC() }} }

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries { return &Queries{db: tx, now: q.now} }

// Store owns the pool and opens transactions.
type Store struct {
	DB      *sql.DB
	Queries *Queries
}

func NewStore(db *sql.DB) *Store { return &Store{DB: db, Queries: New(db)} }

// WithTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back on any error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
