// Package notify delivers the text messages queued by the API.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/queue"
)

// Sender delivers one SMS.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.FromNumber}
}

func (t *TwilioSender) SendSMS(_ context.Context, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)
	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	return nil
}

// LogSender writes messages to the log. Used when Twilio is not configured.
type LogSender struct {
	Log *zap.Logger
}

func (l LogSender) SendSMS(_ context.Context, to, body string) error {
	l.Log.Info("sms (not sent)", zap.String("to", to), zap.String("body", body))
	return nil
}

// NewSender picks Twilio when a sender number is configured.
func NewSender(cfg config.TwilioConfig, log *zap.Logger) Sender {
	if cfg.FromNumber == "" || cfg.AccountSID == "" {
		return LogSender{Log: log.Named("sms")}
	}
	return NewTwilioSender(cfg)
}

// SMSHandler consumes queue.SMSQueue.
func SMSHandler(s Sender, log *zap.Logger) queue.Handler {
	return func(ctx context.Context, env queue.Envelope) error {
		if env.Type != queue.TypePasswordResetRequested {
			log.Warn("unexpected sms event", zap.String("type", env.Type))
			return nil
		}
		var msg queue.SMSRequested
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("decode sms: %w", err)
		}
		if msg.To == "" || msg.Body == "" {
			return errors.New("sms without recipient or body")
		}
		if err := s.SendSMS(ctx, msg.To, msg.Body); err != nil {
			return err
		}
		log.Info("sms delivered", zap.Uint64("user_id", msg.UserID), zap.String("purpose", msg.Purpose))
		return nil
	}
}
