package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventLog appends one human readable line per intake event to a file,
// e.g. logs/intake.log.
type EventLog struct {
	path string
	mu   sync.Mutex
}

func NewEventLog(dir string) *EventLog {
	return &EventLog{path: filepath.Join(dir, "intake.log")}
}

func (l *EventLog) Path() string { return l.path }

// Handle implements Handler.
func (l *EventLog) Handle(_ context.Context, env Envelope) error {
	line, err := FormatEvent(env)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatEvent renders an envelope as a single log line.
func FormatEvent(env Envelope) (string, error) {
	ts := env.OccurredAt.UTC().Format(time.RFC3339)
	switch env.Type {
	case TypeApplicationSubmitted:
		var ev ApplicationSubmitted
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return fmt.Sprintf("[%s] Application submitted | application_id=%d | num=%s | user_id=%d | new_user=%t | location=%q | services=[%s]",
			ts, ev.ApplicationID, ev.ApplicationNum, ev.UserID, ev.NewUser, ev.Location, strings.Join(ev.Services, ",")), nil
	case TypeStatusChanged:
		var ev StatusChanged
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return fmt.Sprintf("[%s] Status changed | application_id=%d | num=%s | %s -> %s | by=%d | comment=%q",
			ts, ev.ApplicationID, ev.ApplicationNum, ev.From, ev.To, ev.ChangedBy, ev.Comment), nil
	}
	return "", fmt.Errorf("unknown event type %q", env.Type)
}
