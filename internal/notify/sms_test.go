package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/queue"
)

type recorder struct {
	to, body []string
	err      error
}

func (r *recorder) SendSMS(_ context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.to = append(r.to, to)
	r.body = append(r.body, body)
	return nil
}

func envelope(t *testing.T, typ string, payload any) queue.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Envelope{Type: typ, OccurredAt: time.Now(), Data: data}
}

func TestSMSHandlerSends(t *testing.T) {
	r := &recorder{}
	h := SMSHandler(r, zap.NewNop())

	err := h(context.Background(), envelope(t, queue.TypePasswordResetRequested,
		queue.SMSRequested{UserID: 1, To: "+4917612345678", Body: "Your code: 123456", Purpose: "password_reset"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"+4917612345678"}, r.to)
	assert.Equal(t, []string{"Your code: 123456"}, r.body)
}

func TestSMSHandlerRejects(t *testing.T) {
	r := &recorder{}
	h := SMSHandler(r, zap.NewNop())

	assert.NoError(t, h(context.Background(), envelope(t, queue.TypeStatusChanged, queue.StatusChanged{})), "foreign events are skipped")
	assert.Error(t, h(context.Background(), envelope(t, queue.TypePasswordResetRequested, queue.SMSRequested{To: "+49"})))
	assert.Error(t, h(context.Background(), queue.Envelope{Type: queue.TypePasswordResetRequested, Data: []byte("{")}))
	assert.Empty(t, r.to)

	r.err = errors.New("twilio down")
	assert.ErrorIs(t, h(context.Background(), envelope(t, queue.TypePasswordResetRequested,
		queue.SMSRequested{To: "+4917612345678", Body: "x"})), r.err)
}

func TestNewSenderFallsBackToLog(t *testing.T) {
	_, ok := NewSender(config.TwilioConfig{}, zap.NewNop()).(LogSender)
	assert.True(t, ok)

	_, ok = NewSender(config.TwilioConfig{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1555"}, zap.NewNop()).(*TwilioSender)
	assert.True(t, ok)
}
