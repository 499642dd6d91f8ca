package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/metrics"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/queue"
	"github.com/iliyamo/medconcierge/internal/repository"
	"github.com/iliyamo/medconcierge/internal/utils"
)

const initialHistoryComment = "Application submitted via website"

// SubmissionRequest is the combined payload of the three wizard steps.
type SubmissionRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"required,intlphone"`
	Password  string `json:"password" validate:"required,min=8,bcryptmax"`

	CurrentLocation  string `json:"currentLocation" validate:"required,oneof=germany eu other"`
	HasInsurance     string `json:"hasInsurance,omitempty" validate:"omitempty,oneof=yes no not_sure"`
	CanComeToGermany string `json:"canComeToGermany,omitempty" validate:"omitempty,oneof=yes no need_help"`
	IsEuResident     string `json:"isEuResident,omitempty" validate:"omitempty,oneof=yes no unknown"`

	NeedCharter     bool `json:"needCharter"`
	NeedTransport   bool `json:"needTransport"`
	NeedVisa        bool `json:"needVisa"`
	NeedInterpreter bool `json:"needInterpreter"`
	NeedHotel       bool `json:"needHotel"`

	Notes string `json:"notes,omitempty" validate:"max=2000"`
}

// SubmissionResult identifies the created application.
type SubmissionResult struct {
	ApplicationID  uint64 `json:"applicationId"`
	ApplicationNum string `json:"applicationNum"`
	UserID         uint64 `json:"userId"`
	NewUser        bool   `json:"-"`
}

func (r *SubmissionRequest) normalize() {
	for _, s := range []*string{&r.FirstName, &r.LastName, &r.Notes} {
		*s = strings.TrimSpace(*s)
	}
	for _, s := range []*string{&r.CurrentLocation, &r.HasInsurance, &r.CanComeToGermany, &r.IsEuResident} {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
	r.Email = NormalizeEmail(r.Email)
	r.Phone = NormalizePhone(r.Phone)
}

func (r *SubmissionRequest) sanitize() {
	r.FirstName = StripTags(r.FirstName)
	r.LastName = StripTags(r.LastName)
	r.Notes = StripTags(r.Notes)
}

// branchErrors rejects answers that belong to the other questionnaire branch.
func (r SubmissionRequest) branchErrors() []FieldError {
	var out []FieldError
	if r.CurrentLocation == model.LocationGermany {
		if r.CanComeToGermany != "" {
			out = append(out, FieldError{Field: "canComeToGermany", Message: "only applies when currentLocation is not germany"})
		}
		if r.IsEuResident != "" {
			out = append(out, FieldError{Field: "isEuResident", Message: "only applies when currentLocation is not germany"})
		}
	} else if r.HasInsurance != "" {
		out = append(out, FieldError{Field: "hasInsurance", Message: "only applies when currentLocation is germany"})
	}
	return out
}

// ServiceCodes maps the selected flags to service codes in display order.
func (r SubmissionRequest) ServiceCodes() []string {
	var codes []string
	for _, s := range []struct {
		on   bool
		code string
	}{
		{r.NeedCharter, model.ServiceCharter},
		{r.NeedTransport, model.ServiceTransport},
		{r.NeedVisa, model.ServiceVisa},
		{r.NeedInterpreter, model.ServiceInterpreter},
		{r.NeedHotel, model.ServiceHotel},
	} {
		if s.on {
			codes = append(codes, s.code)
		}
	}
	return codes
}

func (r SubmissionRequest) euResident() *bool {
	switch r.IsEuResident {
	case "yes":
		v := true
		return &v
	case "no":
		v := false
		return &v
	}
	return nil
}

// IntakeService owns the submission transaction.
type IntakeService struct {
	store      TxRunner
	events     EventPublisher
	log        *zap.Logger
	bcryptCost int

	now    func() time.Time
	newNum func(time.Time) (string, error)
}

func NewIntakeService(store TxRunner, events EventPublisher, log *zap.Logger, bcryptCost int) *IntakeService {
	return &IntakeService{
		store:      store,
		events:     events,
		log:        log.Named("intake"),
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
		newNum:     NewApplicationNum,
	}
}

// Submit validates req and, in one transaction, finds or creates the user,
// creates the application with its services and first history row.
func (s *IntakeService) Submit(ctx context.Context, req SubmissionRequest) (SubmissionResult, error) {
	req.normalize()
	if err := Validate(req); err != nil {
		return SubmissionResult{}, err
	}
	if errs := req.branchErrors(); len(errs) > 0 {
		return SubmissionResult{}, invalid(errs...)
	}
	req.sanitize()
	var empty []FieldError
	if req.FirstName == "" {
		empty = append(empty, FieldError{Field: "firstName", Message: "is required"})
	}
	if req.LastName == "" {
		empty = append(empty, FieldError{Field: "lastName", Message: "is required"})
	}
	if len(empty) > 0 {
		return SubmissionResult{}, invalid(empty...)
	}

	services := req.ServiceCodes()
	var res SubmissionResult
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		res = SubmissionResult{}
		userID, created, err := s.attachUser(ctx, q, req)
		if err != nil {
			return err
		}
		res.UserID, res.NewUser = userID, created

		app := model.Application{
			UserID:       userID,
			IsEuResident: req.euResident(),
			Status:       model.StatusNew,
			ClientNotes:  req.Notes,
		}
		if app.LocationID, err = q.ResolveReferenceID(ctx, model.KindLocation, req.CurrentLocation); err != nil {
			return err
		}
		if app.InsuranceID, err = q.ResolveReferenceID(ctx, model.KindInsurance, req.HasInsurance); err != nil {
			return err
		}
		if app.TravelAbilityID, err = q.ResolveReferenceID(ctx, model.KindTravelAbility, req.CanComeToGermany); err != nil {
			return err
		}

		if res.ApplicationID, res.ApplicationNum, err = s.insertApplication(ctx, q, app); err != nil {
			return err
		}
		if _, err := q.AppendStatusHistory(ctx, model.StatusHistory{
			ApplicationID: res.ApplicationID,
			NewStatus:     model.StatusNew,
			Comment:       initialHistoryComment,
		}); err != nil {
			return err
		}
		if len(services) > 0 {
			if _, err := q.AddApplicationServices(ctx, res.ApplicationID, services); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return SubmissionResult{}, err
		}
		s.log.Error("submission failed", zap.String("email", req.Email), zap.Error(err))
		return SubmissionResult{}, fmt.Errorf("submit application: %w", err)
	}

	metrics.ApplicationsSubmitted.WithLabelValues(strconv.FormatBool(res.NewUser)).Inc()
	s.log.Info("application submitted",
		zap.Uint64("application_id", res.ApplicationID),
		zap.String("application_num", res.ApplicationNum),
		zap.Uint64("user_id", res.UserID),
		zap.Bool("new_user", res.NewUser))
	publish(ctx, s.log, s.events, queue.EventsQueue, queue.TypeApplicationSubmitted, queue.ApplicationSubmitted{
		ApplicationID:  res.ApplicationID,
		ApplicationNum: res.ApplicationNum,
		UserID:         res.UserID,
		NewUser:        res.NewUser,
		Location:       req.CurrentLocation,
		Services:       services,
		SubmittedAt:    s.now(),
	})
	return res, nil
}

// attachUser returns the matching user, refreshing its names, or creates a
// CLIENT. An existing password is never changed by a submission.
func (s *IntakeService) attachUser(ctx context.Context, q repository.Querier, req SubmissionRequest) (uint64, bool, error) {
	u, err := q.FindUserByEmailOrPhone(ctx, req.Email, req.Phone)
	switch {
	case err == nil:
		first, last := u.FirstName, u.LastName
		if req.FirstName != "" {
			first = req.FirstName
		}
		if req.LastName != "" {
			last = req.LastName
		}
		if first != u.FirstName || last != u.LastName {
			if err := q.UpdateUserNames(ctx, u.ID, first, last); err != nil {
				return 0, false, err
			}
		}
		return u.ID, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return 0, false, err
	}

	hash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return 0, false, err
	}
	id, err := q.CreateUser(ctx, model.User{
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         model.RoleClient,
		IsActive:     true,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return 0, false, ErrUserExists
	}
	return id, err == nil, err
}

// insertApplication draws application numbers until one is free.
func (s *IntakeService) insertApplication(ctx context.Context, q repository.Querier, app model.Application) (uint64, string, error) {
	for attempt := 0; attempt < appNumMaxAttempt; attempt++ {
		num, err := s.newNum(s.now())
		if err != nil {
			return 0, "", err
		}
		taken, err := q.ApplicationNumExists(ctx, num)
		if err != nil {
			return 0, "", err
		}
		if taken {
			continue
		}
		app.ApplicationNum = num
		id, err := q.CreateApplication(ctx, app)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return 0, "", err
		}
		return id, num, nil
	}
	return 0, "", errors.New("no free application number")
}
