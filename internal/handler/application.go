package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/service"
)

// Submitter is implemented by *service.IntakeService.
type Submitter interface {
	Submit(ctx context.Context, req service.SubmissionRequest) (service.SubmissionResult, error)
}

// Applications is implemented by *service.ApplicationService.
type Applications interface {
	List(ctx context.Context, actor service.Actor, p service.ListParams) (service.ListResult, error)
	Get(ctx context.Context, actor service.Actor, id uint64) (model.ApplicationDetail, error)
	Dashboard(ctx context.Context, actor service.Actor) (service.Dashboard, error)
	Transition(ctx context.Context, actor service.Actor, id uint64, req service.TransitionRequest) (model.StatusHistory, error)
}

type ApplicationHandler struct {
	Intake Submitter
	Apps   Applications
	Log    *zap.Logger
}

func NewApplicationHandler(intake Submitter, apps Applications, log *zap.Logger) *ApplicationHandler {
	return &ApplicationHandler{Intake: intake, Apps: apps, Log: log.Named("applications")}
}

// Submit is the public intake endpoint behind the wizard.
func (h *ApplicationHandler) Submit(c echo.Context) error {
	var req service.SubmissionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Intake.Submit(ctx, req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Application submitted",
		"data":    res,
	})
}

// List pages through applications visible to the caller.
func (h *ApplicationHandler) List(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	p := service.ListParams{Status: c.QueryParam("status")}
	var err error
	if p.Page, err = queryInt(c, "page"); err != nil || p.Page > service.MaxPage {
		return badRequest(c, "invalid page")
	}
	if p.Limit, err = queryInt(c, "limit"); err != nil {
		return badRequest(c, "invalid limit")
	}
	if v := c.QueryParam("userId"); v != "" {
		uid, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid userId")
		}
		p.UserID = &uid
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := h.Apps.List(ctx, a, p)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// Get returns one application with its status history.
func (h *ApplicationHandler) Get(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	d, err := h.Apps.Get(ctx, a, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// UpdateStatus moves an application to another status (staff only).
func (h *ApplicationHandler) UpdateStatus(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req service.TransitionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	hist, err := h.Apps.Transition(ctx, a, id, req)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "history": hist})
}

// Dashboard summarises the caller's applications per status.
func (h *ApplicationHandler) Dashboard(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	d, err := h.Apps.Dashboard(ctx, a)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}
