package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/service"
)

func newAPI(t *testing.T) (*Client, *echo.Echo) {
	t.Helper()
	e := echo.New()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", nil), e
}

func TestSubmitAndErrors(t *testing.T) {
	c, e := newAPI(t)
	e.POST("/api/applications", func(ctx echo.Context) error {
		var req service.SubmissionRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		if req.Phone == "" {
			return ctx.JSON(http.StatusBadRequest, echo.Map{
				"error":   "validation failed",
				"details": []service.FieldError{{Field: "phone", Message: "is required"}},
			})
		}
		return ctx.JSON(http.StatusOK, echo.Map{
			"success": true,
			"data":    service.SubmissionResult{ApplicationID: 4, ApplicationNum: "APP-20260101-ABCD", UserID: 2},
		})
	})

	res, err := c.Submit(context.Background(), service.SubmissionRequest{Phone: "+4917612345678"})
	require.NoError(t, err)
	assert.Equal(t, "APP-20260101-ABCD", res.ApplicationNum)
	assert.Equal(t, uint64(4), res.ApplicationID)

	_, err = c.Submit(context.Background(), service.SubmissionRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "phone", apiErr.Details[0].Field)
	assert.Contains(t, apiErr.Error(), "phone is required")
}

func TestLoginSetsBearer(t *testing.T) {
	c, e := newAPI(t)
	e.POST("/api/auth/login", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{"access": echo.Map{"token": "tok-1"}})
	})
	e.GET("/api/applications", func(ctx echo.Context) error {
		if ctx.Request().Header.Get("Authorization") != "Bearer tok-1" {
			return ctx.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		assert.Equal(t, "2", ctx.QueryParam("page"))
		return ctx.JSON(http.StatusOK, service.ListResult{Pagination: service.Pagination{Page: 2, Limit: 10, Total: 11, TotalPages: 2}})
	})

	_, err := c.Applications(context.Background(), 2, 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	require.NoError(t, c.Login(context.Background(), "+4917612345678", "Secret123"))
	res, err := c.Applications(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Pagination.Total)
}

func TestChatEndpoints(t *testing.T) {
	c, e := newAPI(t)
	e.GET("/api/applications/:id/messages", func(ctx echo.Context) error {
		assert.Equal(t, "7", ctx.Param("id"))
		assert.Equal(t, "3", ctx.QueryParam("after"))
		return ctx.JSON(http.StatusOK, service.Thread{Messages: []model.Message{{ID: 4, Content: "hi"}}, UnreadCount: 1})
	})
	e.POST("/api/applications/:id/messages", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusCreated, model.Message{ID: 5, Content: "hello"})
	})
	e.PATCH("/api/applications/:id/messages/read", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{"success": true, "lastReadId": 5})
	})
	e.POST("/api/auth/forgot-password", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, echo.Map{"success": true})
	})

	th, err := c.Messages(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, th.UnreadCount)

	m, err := c.PostMessage(context.Background(), 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), m.ID)

	last, err := c.MarkRead(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	assert.NoError(t, c.ForgotPassword(context.Background(), "+4917612345678"))
}

// fakeThreadAPI serves a growing server-side thread.
type fakeThreadAPI struct {
	mu      sync.Mutex
	server  []model.Message
	afters  []uint64
	calls   atomic.Int32
	reads   atomic.Int32
	readErr error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeThreadAPI) Messages(_ context.Context, _ uint64, after uint64) (service.Thread, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afters = append(f.afters, after)
	var out []model.Message
	for _, m := range f.server {
		if m.ID > after {
			out = append(out, m)
		}
	}
	return service.Thread{Messages: out}, nil
}

func (f *fakeThreadAPI) PostMessage(_ context.Context, appID uint64, content string) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := model.Message{ID: uint64(len(f.server) + 1), ApplicationID: appID, Content: content, SenderRole: model.RoleClient, IsRead: true}
	f.server = append(f.server, m)
	return m, nil
}

func (f *fakeThreadAPI) MarkRead(context.Context, uint64) (uint64, error) {
	f.reads.Add(1)
	return 0, f.readErr
}

func (f *fakeThreadAPI) add(m model.Message) {
	f.mu.Lock()
	m.ID = uint64(len(f.server) + 1)
	f.server = append(f.server, m)
	f.mu.Unlock()
}

func TestThreadRefreshIncremental(t *testing.T) {
	api := &fakeThreadAPI{}
	api.add(model.Message{Content: "welcome", SenderRole: model.RoleManager})
	var snapshots int
	th := NewThread(api, 1, OnChange(func([]model.Message) { snapshots++ }))

	require.NoError(t, th.Refresh(context.Background()))
	th.waitReads()
	assert.Len(t, th.Messages(), 1)
	assert.Equal(t, int32(1), api.reads.Load(), "unread staff message is marked read")

	api.add(model.Message{Content: "any news?", SenderRole: model.RoleManager})
	require.NoError(t, th.Refresh(context.Background()))
	require.NoError(t, th.Refresh(context.Background()))
	th.waitReads()

	assert.Equal(t, []uint64{0, 1, 2}, api.afters)
	assert.Len(t, th.Messages(), 2)
	assert.Equal(t, 2, snapshots, "no change on the empty poll")
}

func TestThreadSendIsOptimistic(t *testing.T) {
	api := &fakeThreadAPI{}
	th := NewThread(api, 1)
	require.NoError(t, th.Refresh(context.Background()))

	api.add(model.Message{Content: "reply from staff", SenderRole: model.RoleManager})
	m, err := th.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.ID)
	require.Len(t, th.Messages(), 1, "sent message shows before the next poll")

	require.NoError(t, th.Refresh(context.Background()))
	th.waitReads()
	msgs := th.Messages()
	require.Len(t, msgs, 2, "poll still fetches the reply posted before the send")
	assert.Equal(t, "reply from staff", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestThreadMarkReadErrorsIgnored(t *testing.T) {
	api := &fakeThreadAPI{readErr: errors.New("boom")}
	api.add(model.Message{Content: "x"})
	th := NewThread(api, 1)
	assert.NoError(t, th.Refresh(context.Background()))
	th.waitReads()
	assert.Equal(t, int32(1), api.reads.Load())
}

func TestThreadRefreshSingleFlight(t *testing.T) {
	api := &fakeThreadAPI{gate: make(chan struct{}), entered: make(chan struct{}, 2)}
	th := NewThread(api, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = th.Refresh(context.Background()) }()
	<-api.entered
	go func() { defer wg.Done(); _ = th.Refresh(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(api.gate)
	wg.Wait()

	assert.Equal(t, int32(1), api.calls.Load())
}

func TestThreadRunStopsOnCancel(t *testing.T) {
	api := &fakeThreadAPI{}
	th := NewThread(api, 1, WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- th.Run(ctx) }()
	assert.Eventually(t, func() bool { return api.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGroupByDay(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}
	msgs := []model.Message{
		{ID: 1, CreatedAt: at("2026-03-01T10:00:00Z")},
		{ID: 2, CreatedAt: at("2026-03-01T22:59:00Z")},
		{ID: 3, CreatedAt: at("2026-03-01T23:30:00Z")}, // next day in CET
		{ID: 4, CreatedAt: at("2026-03-03T08:00:00Z")},
	}
	days := GroupByDay(msgs, loc)
	require.Len(t, days, 3)
	assert.Len(t, days[0].Messages, 2)
	assert.Equal(t, 2, days[1].Date.Day())
	assert.Equal(t, uint64(3), days[1].Messages[0].ID)
	assert.Equal(t, 3, days[2].Date.Day())
	assert.Empty(t, GroupByDay(nil, loc))
}
