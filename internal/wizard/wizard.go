// Package wizard is the three-step intake form as a state machine. It holds
// answers across steps, validates each step before advancing and merges the
// answers into one submission payload.
package wizard

import (
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/service"
)

// Step identifies a page of the form.
type Step int

const (
	StepIdentity Step = iota
	StepQuestionnaire
	StepServices
)

func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "identity"
	case StepQuestionnaire:
		return "questionnaire"
	case StepServices:
		return "services"
	}
	return "unknown"
}

// MaxNotes is the character limit of the free-text notes.
const MaxNotes = 2000

// RedirectDelay is how long the success screen stays before leaving.
const RedirectDelay = 5 * time.Second

type Identity struct {
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Phone           string `json:"phone" validate:"required,intlphone"`
	Password        string `json:"password" validate:"required,min=8,bcryptmax"`
	ConfirmPassword string `json:"confirmPassword"`
}

type Questionnaire struct {
	CurrentLocation  string `json:"currentLocation"`
	HasInsurance     string `json:"hasInsurance"`
	CanComeToGermany string `json:"canComeToGermany"`
	IsEuResident     string `json:"isEuResident"`
}

type Services struct {
	Charter     bool
	Transport   bool
	Visa        bool
	Interpreter bool
	Hotel       bool
	Notes       string
}

// Remaining is the number of characters still available for Notes.
func (s Services) Remaining() int {
	return MaxNotes - utf8.RuneCountInString(s.Notes)
}

// Wizard keeps the answers of every step. Going back never clears them.
type Wizard struct {
	Identity      Identity
	Questionnaire Questionnaire
	Services      Services

	step Step
}

func New() *Wizard { return &Wizard{} }

func (w *Wizard) Step() Step { return w.step }

// Last reports whether the current step is the final one.
func (w *Wizard) Last() bool { return w.step == StepServices }

// Next validates the current step and advances. On the last step it only
// validates.
func (w *Wizard) Next() error {
	if err := w.validate(w.step); err != nil {
		return err
	}
	if w.step < StepServices {
		w.step++
	}
	return nil
}

func (w *Wizard) Back() {
	if w.step > StepIdentity {
		w.step--
	}
}

// Submit validates every step and returns the merged payload. The wizard
// jumps to the first step that fails.
func (w *Wizard) Submit() (service.SubmissionRequest, error) {
	for s := StepIdentity; s <= StepServices; s++ {
		if err := w.validate(s); err != nil {
			w.step = s
			return service.SubmissionRequest{}, err
		}
	}
	return w.merge(), nil
}

func (w *Wizard) validate(s Step) error {
	switch s {
	case StepIdentity:
		return validateIdentity(w.Identity)
	case StepQuestionnaire:
		return validateQuestionnaire(w.Questionnaire)
	case StepServices:
		if w.Services.Remaining() < 0 {
			return &service.ValidationError{Details: []service.FieldError{{Field: "notes", Message: "must be at most 2000 characters"}}}
		}
	}
	return nil
}

func validateIdentity(id Identity) error {
	id.Email = service.NormalizeEmail(id.Email)
	id.Phone = service.NormalizePhone(id.Phone)
	id.FirstName = strings.TrimSpace(id.FirstName)
	id.LastName = strings.TrimSpace(id.LastName)

	var details []service.FieldError
	if err := service.Validate(id); err != nil {
		var verr *service.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		details = verr.Details
	}
	if id.Password != "" && !strongPassword(id.Password) {
		details = append(details, service.FieldError{Field: "password", Message: "must contain an uppercase letter and a digit"})
	}
	if id.ConfirmPassword != id.Password {
		details = append(details, service.FieldError{Field: "confirmPassword", Message: "does not match"})
	}
	if len(details) > 0 {
		return &service.ValidationError{Details: details}
	}
	return nil
}

func strongPassword(p string) bool {
	var upper, digit bool
	for _, r := range p {
		upper = upper || unicode.IsUpper(r)
		digit = digit || unicode.IsDigit(r)
	}
	return upper && digit
}

func validateQuestionnaire(q Questionnaire) error {
	var details []service.FieldError
	need := func(field, value string, allowed ...string) {
		if value == "" {
			details = append(details, service.FieldError{Field: field, Message: "is required"})
			return
		}
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		details = append(details, service.FieldError{Field: field, Message: "must be one of: " + strings.Join(allowed, ", ")})
	}

	need("currentLocation", q.CurrentLocation, model.LocationGermany, model.LocationEU, model.LocationOther)
	switch q.CurrentLocation {
	case model.LocationGermany:
		need("hasInsurance", q.HasInsurance, "yes", "no", "not_sure")
	case model.LocationEU, model.LocationOther:
		need("canComeToGermany", q.CanComeToGermany, "yes", "no", "need_help")
		need("isEuResident", q.IsEuResident, "yes", "no", "unknown")
	}
	if len(details) > 0 {
		return &service.ValidationError{Details: details}
	}
	return nil
}

// merge builds the payload. Answers of the branch the user did not end up
// on are dropped so a changed location never leaks stale values.
func (w *Wizard) merge() service.SubmissionRequest {
	id, q, s := w.Identity, w.Questionnaire, w.Services
	req := service.SubmissionRequest{
		FirstName:       strings.TrimSpace(id.FirstName),
		LastName:        strings.TrimSpace(id.LastName),
		Email:           service.NormalizeEmail(id.Email),
		Phone:           service.NormalizePhone(id.Phone),
		Password:        id.Password,
		CurrentLocation: q.CurrentLocation,
		NeedCharter:     s.Charter,
		NeedTransport:   s.Transport,
		NeedVisa:        s.Visa,
		NeedInterpreter: s.Interpreter,
		NeedHotel:       s.Hotel,
		Notes:           strings.TrimSpace(s.Notes),
	}
	if q.CurrentLocation == model.LocationGermany {
		req.HasInsurance = q.HasInsurance
	} else {
		req.CanComeToGermany = q.CanComeToGermany
		req.IsEuResident = q.IsEuResident
	}
	return req
}
