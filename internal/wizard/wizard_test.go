package wizard

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/medconcierge/internal/service"
)

func validIdentity() Identity {
	return Identity{
		FirstName: "Anna", LastName: "Muller", Email: " Anna@Example.com ",
		Phone: "+49 176 1234 5678", Password: "Secret123", ConfirmPassword: "Secret123",
	}
}

func fields(t *testing.T, err error) []string {
	t.Helper()
	var verr *service.ValidationError
	require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
	var out []string
	for _, d := range verr.Details {
		out = append(out, d.Field)
	}
	return out
}

func TestIdentityRules(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Identity)
		field string
	}{
		{"no uppercase", func(i *Identity) { i.Password, i.ConfirmPassword = "secret123", "secret123" }, "password"},
		{"no digit", func(i *Identity) { i.Password, i.ConfirmPassword = "SecretPass", "SecretPass" }, "password"},
		{"short", func(i *Identity) { i.Password, i.ConfirmPassword = "Se1", "Se1" }, "password"},
		{"over 72 bytes", func(i *Identity) {
			i.Password = "Секретный" + strings.Repeat("пароль", 6) + "Ключ1234"
			i.ConfirmPassword = i.Password
		}, "password"},
		{"mismatch", func(i *Identity) { i.ConfirmPassword = "Secret124" }, "confirmPassword"},
		{"phone", func(i *Identity) { i.Phone = "017612345678" }, "phone"},
		{"email", func(i *Identity) { i.Email = "anna" }, "email"},
		{"first name", func(i *Identity) { i.FirstName = "  " }, "firstName"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := New()
			w.Identity = validIdentity()
			tc.edit(&w.Identity)
			err := w.Next()
			assert.Contains(t, fields(t, err), tc.field)
			assert.Equal(t, StepIdentity, w.Step())
		})
	}
}

func TestNextAndBackKeepAnswers(t *testing.T) {
	w := New()
	w.Identity = validIdentity()
	require.NoError(t, w.Next())
	assert.Equal(t, StepQuestionnaire, w.Step())

	assert.ElementsMatch(t, []string{"currentLocation"}, fields(t, w.Next()))

	w.Questionnaire.CurrentLocation = "germany"
	assert.Equal(t, []string{"hasInsurance"}, fields(t, w.Next()))
	w.Questionnaire.HasInsurance = "yes"
	require.NoError(t, w.Next())
	assert.Equal(t, StepServices, w.Step())
	assert.True(t, w.Last())

	w.Back()
	w.Back()
	w.Back()
	assert.Equal(t, StepIdentity, w.Step())
	assert.Equal(t, "Anna", w.Identity.FirstName)
	assert.Equal(t, "yes", w.Questionnaire.HasInsurance)
}

func TestAbroadBranchRequiresBothAnswers(t *testing.T) {
	w := New()
	w.Identity = validIdentity()
	require.NoError(t, w.Next())
	w.Questionnaire.CurrentLocation = "other"
	assert.ElementsMatch(t, []string{"canComeToGermany", "isEuResident"}, fields(t, w.Next()))

	w.Questionnaire.CanComeToGermany = "maybe"
	w.Questionnaire.IsEuResident = "unknown"
	assert.Equal(t, []string{"canComeToGermany"}, fields(t, w.Next()))
}

func TestSubmitMergesAndDropsStaleBranch(t *testing.T) {
	w := New()
	w.Identity = validIdentity()
	w.Questionnaire = Questionnaire{CurrentLocation: "eu", HasInsurance: "no", CanComeToGermany: "need_help", IsEuResident: "yes"}
	w.Services = Services{Visa: true, Hotel: true, Notes: "  knee surgery  "}

	req, err := w.Submit()
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", req.Email)
	assert.Equal(t, "+4917612345678", req.Phone)
	assert.Equal(t, "", req.HasInsurance, "answer from the germany branch is dropped")
	assert.Equal(t, "need_help", req.CanComeToGermany)
	assert.Equal(t, "yes", req.IsEuResident)
	assert.True(t, req.NeedVisa)
	assert.True(t, req.NeedHotel)
	assert.False(t, req.NeedCharter)
	assert.Equal(t, "knee surgery", req.Notes)
	assert.Equal(t, []string{"visa", "hotel"}, req.ServiceCodes())
	assert.NoError(t, service.Validate(req))
}

func TestSubmitJumpsToFirstInvalidStep(t *testing.T) {
	w := New()
	w.Identity = validIdentity()
	require.NoError(t, w.Next())
	w.Questionnaire.CurrentLocation = "germany"
	w.Questionnaire.HasInsurance = "yes"
	require.NoError(t, w.Next())

	w.Identity.ConfirmPassword = "nope"
	_, err := w.Submit()
	assert.Equal(t, []string{"confirmPassword"}, fields(t, err))
	assert.Equal(t, StepIdentity, w.Step())
}

func TestNotesCounter(t *testing.T) {
	s := Services{Notes: "Привет"}
	assert.Equal(t, MaxNotes-6, s.Remaining())

	w := New()
	w.Identity = validIdentity()
	w.Questionnaire = Questionnaire{CurrentLocation: "germany", HasInsurance: "not_sure"}
	w.Services.Notes = strings.Repeat("x", MaxNotes+1)
	_, err := w.Submit()
	assert.Equal(t, []string{"notes"}, fields(t, err))
	assert.Equal(t, StepServices, w.Step())

	w.Services.Notes = strings.Repeat("x", MaxNotes)
	_, err = w.Submit()
	assert.NoError(t, err)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "questionnaire", StepQuestionnaire.String())
	assert.Equal(t, "unknown", Step(9).String())
}
