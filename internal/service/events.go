package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/metrics"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/repository"
)

// EventPublisher is implemented by *queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, queueName, eventType string, payload any) error
}

// TxRunner is implemented by *repository.Store.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repository.Querier) error) error
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Role   model.Role
}

func (a Actor) IsStaff() bool { return a.Role.IsStaff() }

// canSee reports whether the actor may read an application owned by owner.
func (a Actor) canSee(owner uint64) bool { return a.IsStaff() || a.UserID == owner }

const publishTimeout = 3 * time.Second

// publish sends an event after a commit. Broker failures are logged and
// swallowed; the request has already succeeded.
func publish(ctx context.Context, log *zap.Logger, p EventPublisher, queueName, eventType string, payload any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, queueName, eventType, payload); err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "error").Inc()
		log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType, "ok").Inc()
}
