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

// Chat is implemented by *service.ChatService.
type Chat interface {
	List(ctx context.Context, actor service.Actor, applicationID, afterID uint64) (service.Thread, error)
	Post(ctx context.Context, actor service.Actor, applicationID uint64, content string) (model.Message, error)
	MarkRead(ctx context.Context, actor service.Actor, applicationID uint64) (uint64, error)
}

type MessageHandler struct {
	Chat Chat
	Log  *zap.Logger
}

func NewMessageHandler(chat Chat, log *zap.Logger) *MessageHandler {
	return &MessageHandler{Chat: chat, Log: log.Named("chat")}
}

type postMessageReq struct {
	Content string `json:"content"`
}

// List returns the thread, or only messages after ?after=<id>.
func (h *MessageHandler) List(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var after uint64
	if v := c.QueryParam("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid after")
		}
		after = n
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	th, err := h.Chat.List(ctx, a, id, after)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, th)
}

func (h *MessageHandler) Post(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req postMessageReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	m, err := h.Chat.Post(ctx, a, id, req.Content)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
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
	last, err := h.Chat.MarkRead(ctx, a, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "lastReadId": last})
}
