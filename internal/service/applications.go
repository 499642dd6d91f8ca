package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/metrics"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/queue"
	"github.com/iliyamo/medconcierge/internal/repository"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	dashboardRecent  = 5

	// MaxPage keeps (page-1)*limit inside int.
	MaxPage = math.MaxInt / MaxPageLimit
)

// ApplicationReader is the read side of *repository.Queries.
type ApplicationReader interface {
	ListApplications(ctx context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error)
	GetApplicationDetail(ctx context.Context, id uint64) (model.ApplicationDetail, error)
	CountByStatus(ctx context.Context, userID *uint64) (map[model.Status]int, error)
}

// ListParams are the raw listing query parameters.
type ListParams struct {
	Page   int
	Limit  int
	Status string
	UserID *uint64
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type ListResult struct {
	Data       []model.ApplicationDetail `json:"data"`
	Pagination Pagination                `json:"pagination"`
}

type Dashboard struct {
	Total  int                       `json:"total"`
	Counts []model.StatusCount       `json:"counts"`
	Recent []model.ApplicationDetail `json:"recent"`
}

// ApplicationService serves listing, detail, dashboard and status transitions.
type ApplicationService struct {
	store  TxRunner
	reader ApplicationReader
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

func NewApplicationService(store TxRunner, reader ApplicationReader, events EventPublisher, log *zap.Logger) *ApplicationService {
	return &ApplicationService{
		store:  store,
		reader: reader,
		events: events,
		log:    log.Named("applications"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of applications. A CLIENT only ever sees its own
// rows, whatever userId it asks for.
func (s *ApplicationService) List(ctx context.Context, actor Actor, p ListParams) (ListResult, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		return ListResult{}, invalid(FieldError{Field: "page", Message: fmt.Sprintf("must be at most %d", MaxPage)})
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}

	f := model.ApplicationFilter{Limit: p.Limit, Offset: (p.Page - 1) * p.Limit}
	if p.Status != "" {
		st, ok := model.ParseStatus(p.Status)
		if !ok {
			return ListResult{}, ErrInvalidStatus
		}
		f.Status = &st
	}
	if actor.IsStaff() {
		f.UserID = p.UserID
	} else {
		uid := actor.UserID
		f.UserID = &uid
	}

	rows, total, err := s.reader.ListApplications(ctx, f)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{
		Data: rows,
		Pagination: Pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: (total + p.Limit - 1) / p.Limit,
		},
	}, nil
}

// Get returns one application with its history. Rows the actor may not see
// are reported as ErrNotFound.
func (s *ApplicationService) Get(ctx context.Context, actor Actor, id uint64) (model.ApplicationDetail, error) {
	d, err := s.reader.GetApplicationDetail(ctx, id)
	if err != nil {
		return model.ApplicationDetail{}, err
	}
	if !actor.canSee(d.User.ID) {
		return model.ApplicationDetail{}, ErrNotFound
	}
	return d, nil
}

// Dashboard summarises applications per status, zero-filled over the whole
// enum, with the most recent entries.
func (s *ApplicationService) Dashboard(ctx context.Context, actor Actor) (Dashboard, error) {
	var owner *uint64
	if !actor.IsStaff() {
		uid := actor.UserID
		owner = &uid
	}
	counts, err := s.reader.CountByStatus(ctx, owner)
	if err != nil {
		return Dashboard{}, err
	}
	out := Dashboard{Counts: make([]model.StatusCount, 0, len(model.AllStatuses))}
	for _, st := range model.AllStatuses {
		n := counts[st]
		out.Total += n
		out.Counts = append(out.Counts, model.StatusCount{Status: st, Label: st.Label(), Count: n})
	}
	recent, _, err := s.reader.ListApplications(ctx, model.ApplicationFilter{UserID: owner, Limit: dashboardRecent})
	if err != nil {
		return Dashboard{}, err
	}
	out.Recent = recent
	return out, nil
}

// TransitionRequest moves an application to Status. Comment is optional.
type TransitionRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// Transition changes the status of an application and appends exactly one
// history row. Any status may follow any other; a no-op is rejected.
func (s *ApplicationService) Transition(ctx context.Context, actor Actor, id uint64, req TransitionRequest) (model.StatusHistory, error) {
	if !actor.IsStaff() {
		return model.StatusHistory{}, ErrForbidden
	}
	target, ok := model.ParseStatus(req.Status)
	if !ok {
		return model.StatusHistory{}, ErrInvalidStatus
	}
	comment := StripTags(req.Comment)
	if len([]rune(comment)) > 1000 {
		return model.StatusHistory{}, invalid(FieldError{Field: "comment", Message: "must be at most 1000 characters"})
	}

	var (
		from model.Status
		num  string
		h    model.StatusHistory
	)
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		app, err := q.GetApplicationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if app.Status == target {
			return ErrStatusUnchanged
		}
		from, num = app.Status, app.ApplicationNum
		if err := q.UpdateApplicationStatus(ctx, id, target); err != nil {
			return err
		}
		if comment == "" {
			comment = fmt.Sprintf("Status changed from %s to %s", from, target)
		}
		changedBy := actor.UserID
		h = model.StatusHistory{ApplicationID: id, NewStatus: target, Comment: comment, ChangedBy: &changedBy, CreatedAt: s.now()}
		h.ID, err = q.AppendStatusHistory(ctx, h)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrStatusUnchanged) {
			s.log.Error("status transition failed", zap.Uint64("application_id", id), zap.Error(err))
		}
		return model.StatusHistory{}, err
	}

	metrics.StatusTransitions.WithLabelValues(string(target)).Inc()
	s.log.Info("status changed",
		zap.Uint64("application_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.Uint64("by", actor.UserID))
	publish(ctx, s.log, s.events, queue.EventsQueue, queue.TypeStatusChanged, queue.StatusChanged{
		ApplicationID:  id,
		ApplicationNum: num,
		From:           string(from),
		To:             string(target),
		Comment:        h.Comment,
		ChangedBy:      actor.UserID,
		ChangedAt:      h.CreatedAt,
	})
	return h, nil
}
