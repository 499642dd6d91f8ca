// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"encoding/json"
	"time"
)

// Queue names. Both are durable.
const (
	EventsQueue = "intake.events"
	SMSQueue    = "notifications.sms"
)

// Event types carried in Envelope.Type.
const (
	TypeApplicationSubmitted   = "application.submitted"
	TypeStatusChanged          = "application.status_changed"
	TypePasswordResetRequested = "password.reset_requested"
)

// Envelope wraps every published payload so consumers can dispatch on Type
// before decoding Data.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// ApplicationSubmitted is published after the submission transaction commits.
type ApplicationSubmitted struct {
	ApplicationID  uint64    `json:"application_id"`
	ApplicationNum string    `json:"application_num"`
	UserID         uint64    `json:"user_id"`
	NewUser        bool      `json:"new_user"`
	Location       string    `json:"location"`
	Services       []string  `json:"services"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// StatusChanged is published after a staff member moves an application.
type StatusChanged struct {
	ApplicationID  uint64    `json:"application_id"`
	ApplicationNum string    `json:"application_num"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Comment        string    `json:"comment"`
	ChangedBy      uint64    `json:"changed_by"`
	ChangedAt      time.Time `json:"changed_at"`
}

// SMSRequested asks the worker to deliver a text message.
type SMSRequested struct {
	UserID  uint64 `json:"user_id"`
	To      string `json:"to"`
	Body    string `json:"body"`
	Purpose string `json:"purpose"`
}
