package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/service"
)

// PollInterval is how often a Thread asks the server for new messages.
const PollInterval = 10 * time.Second

// ThreadAPI is the part of *Client a Thread needs.
type ThreadAPI interface {
	Messages(ctx context.Context, appID, after uint64) (service.Thread, error)
	PostMessage(ctx context.Context, appID uint64, content string) (model.Message, error)
	MarkRead(ctx context.Context, appID uint64) (uint64, error)
}

// Thread keeps a local copy of one application's chat in sync by polling.
type Thread struct {
	api      ThreadAPI
	appID    uint64
	interval time.Duration
	log      *zap.Logger

	flight singleflight.Group

	mu       sync.Mutex
	msgs     []model.Message
	cursor   uint64 // highest ID seen through polling
	loaded   bool
	onChange func([]model.Message)
	reads    sync.WaitGroup
}

type ThreadOption func(*Thread)

func WithInterval(d time.Duration) ThreadOption { return func(t *Thread) { t.interval = d } }

func WithLogger(l *zap.Logger) ThreadOption { return func(t *Thread) { t.log = l } }

// OnChange is called with a snapshot whenever messages are added.
func OnChange(fn func([]model.Message)) ThreadOption { return func(t *Thread) { t.onChange = fn } }

func NewThread(api ThreadAPI, appID uint64, opts ...ThreadOption) *Thread {
	t := &Thread{api: api, appID: appID, interval: PollInterval, log: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Run refreshes immediately and then every interval until ctx is done.
// Poll errors are logged and retried on the next tick.
func (t *Thread) Run(ctx context.Context) error {
	if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
		t.log.Warn("chat refresh failed", zap.Uint64("application_id", t.appID), zap.Error(err))
	}
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
				t.log.Warn("chat refresh failed", zap.Uint64("application_id", t.appID), zap.Error(err))
			}
		}
	}
}

// Refresh fetches new messages now. Concurrent calls share one request.
func (t *Thread) Refresh(ctx context.Context) error {
	_, err, _ := t.flight.Do("refresh", func() (any, error) {
		t.mu.Lock()
		after := t.cursor
		if !t.loaded {
			after = 0
		}
		t.mu.Unlock()

		th, err := t.api.Messages(ctx, t.appID, after)
		if err != nil {
			return nil, err
		}
		unread := false
		for _, m := range th.Messages {
			if !m.IsRead {
				unread = true
				break
			}
		}
		t.mu.Lock()
		t.loaded = true
		for _, m := range th.Messages {
			if m.ID > t.cursor {
				t.cursor = m.ID
			}
		}
		changed := t.mergeLocked(th.Messages)
		t.mu.Unlock()

		if changed {
			t.notify()
		}
		if unread {
			t.markRead(ctx)
		}
		return nil, nil
	})
	return err
}

// Send posts content and appends the stored message without waiting for
// the next poll.
func (t *Thread) Send(ctx context.Context, content string) (model.Message, error) {
	m, err := t.api.PostMessage(ctx, t.appID, content)
	if err != nil {
		return model.Message{}, err
	}
	m.IsRead = true
	t.mu.Lock()
	changed := t.mergeLocked([]model.Message{m})
	t.mu.Unlock()
	if changed {
		t.notify()
	}
	return m, nil
}

// markRead advances the read marker in the background. Failures are
// ignored; the next poll tries again.
func (t *Thread) markRead(ctx context.Context) {
	t.reads.Add(1)
	go func() {
		defer t.reads.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = t.api.MarkRead(rctx, t.appID)
	}()
}

// mergeLocked adds unseen messages keeping ID order. The poll cursor is not
// moved by sent messages so replies posted in between are still fetched.
func (t *Thread) mergeLocked(in []model.Message) bool {
	seen := make(map[uint64]bool, len(t.msgs))
	for _, m := range t.msgs {
		seen[m.ID] = true
	}
	added := false
	for _, m := range in {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		t.msgs = append(t.msgs, m)
		added = true
	}
	if added {
		sort.Slice(t.msgs, func(i, j int) bool { return t.msgs[i].ID < t.msgs[j].ID })
	}
	return added
}

// waitReads blocks until background read markers are sent.
func (t *Thread) waitReads() { t.reads.Wait() }

func (t *Thread) notify() {
	if t.onChange != nil {
		t.onChange(t.Messages())
	}
}

// Messages returns a copy of the local thread, oldest first.
func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Days returns the thread grouped by calendar day in loc.
func (t *Thread) Days(loc *time.Location) []Day {
	return GroupByDay(t.Messages(), loc)
}

// Day is one calendar date of a thread.
type Day struct {
	Date     time.Time
	Messages []model.Message
}

// GroupByDay splits msgs (oldest first) into calendar days in loc.
func GroupByDay(msgs []model.Message, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	var days []Day
	for _, m := range msgs {
		ts := m.CreatedAt.In(loc)
		date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)
		if n := len(days); n > 0 && days[n-1].Date.Equal(date) {
			days[n-1].Messages = append(days[n-1].Messages, m)
			continue
		}
		days = append(days, Day{Date: date, Messages: []model.Message{m}})
	}
	return days
}
