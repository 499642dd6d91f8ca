package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/metrics"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/queue"
	"github.com/iliyamo/medconcierge/internal/repository"
	"github.com/iliyamo/medconcierge/internal/utils"
)

const (
	resetCodeDigits = 6
	minPasswordLen  = 8

	// MaxResetAttempts failed checks burn the code.
	MaxResetAttempts = 5
)

// ResetStore is the non-transactional side of the forgot-password flow.
type ResetStore interface {
	GetUserByPhone(ctx context.Context, phone string) (model.User, error)
	UpsertPasswordReset(ctx context.Context, userID uint64, codeHash string, expiresAt time.Time) error
}

type PasswordService struct {
	store      ResetStore
	tx         TxRunner
	events     EventPublisher
	log        *zap.Logger
	codeTTL    time.Duration
	bcryptCost int

	now     func() time.Time
	newCode func(int) (string, error)
}

func NewPasswordService(store ResetStore, tx TxRunner, events EventPublisher, log *zap.Logger, codeTTL time.Duration, bcryptCost int) *PasswordService {
	return &PasswordService{
		store:      store,
		tx:         tx,
		events:     events,
		log:        log.Named("password"),
		codeTTL:    codeTTL,
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    utils.NewNumericCode,
	}
}

// RequestReset issues a one-time code for the account registered under
// phone and queues it for SMS delivery. Unknown phones are not reported to
// the caller.
func (s *PasswordService) RequestReset(ctx context.Context, phone string) error {
	phone = NormalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return invalid(FieldError{Field: "phone", Message: "must be an international number like +4917612345678"})
	}
	u, err := s.store.GetUserByPhone(ctx, phone)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		s.log.Info("password reset for unknown phone")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := s.newCode(resetCodeDigits)
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(code, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.UpsertPasswordReset(ctx, u.ID, hash, s.now().Add(s.codeTTL)); err != nil {
		return err
	}

	metrics.PasswordResets.WithLabelValues("requested").Inc()
	s.log.Info("password reset requested", zap.Uint64("user_id", u.ID))
	publish(ctx, s.log, s.events, queue.SMSQueue, queue.TypePasswordResetRequested, queue.SMSRequested{
		UserID:  u.ID,
		To:      u.Phone,
		Body:    fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.", code, int(s.codeTTL.Minutes())),
		Purpose: "password_reset",
	})
	return nil
}

// Reset consumes a valid code, sets the new password and ends every
// session of the user. Any mismatch yields ErrInvalidResetCode, and
// MaxResetAttempts wrong codes delete the pending reset.
func (s *PasswordService) Reset(ctx context.Context, phone, code, newPassword string) error {
	phone = NormalizePhone(phone)
	var details []FieldError
	if phone == "" {
		details = append(details, FieldError{Field: "phone", Message: "is required"})
	}
	if code == "" {
		details = append(details, FieldError{Field: "code", Message: "is required"})
	}
	if utf8.RuneCountInString(newPassword) < minPasswordLen {
		details = append(details, FieldError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLen)})
	} else if len(newPassword) > maxPasswordBytes {
		details = append(details, FieldError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)})
	}
	if len(details) > 0 {
		return invalid(details...)
	}

	hash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	var (
		userID   uint64
		rejected bool
	)
	err = s.tx.WithTx(ctx, func(q repository.Querier) error {
		u, err := q.GetUserByPhone(ctx, phone)
		if err != nil {
			return err
		}
		pr, err := q.GetPasswordResetForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		if pr.Expired(s.now()) {
			return ErrInvalidResetCode
		}
		if !utils.VerifyPassword(pr.CodeHash, code) {
			// commit the counter, the caller still sees ErrInvalidResetCode
			rejected = true
			if pr.Attempts+1 >= MaxResetAttempts {
				s.log.Warn("password reset code burned", zap.Uint64("user_id", u.ID))
				return q.DeletePasswordReset(ctx, u.ID)
			}
			return q.IncrementResetAttempts(ctx, u.ID)
		}
		if err := q.UpdateUserPassword(ctx, u.ID, hash); err != nil {
			return err
		}
		if err := q.DeletePasswordReset(ctx, u.ID); err != nil {
			return err
		}
		userID = u.ID
		return q.RevokeAllForUser(ctx, u.ID)
	})
	switch {
	case err == nil && rejected:
		metrics.PasswordResets.WithLabelValues("rejected").Inc()
		return ErrInvalidResetCode
	case err == nil:
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrInvalidResetCode):
		metrics.PasswordResets.WithLabelValues("rejected").Inc()
		return ErrInvalidResetCode
	default:
		return err
	}

	metrics.PasswordResets.WithLabelValues("completed").Inc()
	s.log.Info("password reset completed", zap.Uint64("user_id", userID))
	return nil
}
