package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/model"
)

// ReferenceLister is implemented by *repository.Queries.
type ReferenceLister interface {
	ListReferences(ctx context.Context, kind model.LookupKind, activeOnly bool) ([]model.Reference, error)
}

type ReferenceHandler struct {
	Refs ReferenceLister
	Log  *zap.Logger
}

func NewReferenceHandler(refs ReferenceLister, log *zap.Logger) *ReferenceHandler {
	return &ReferenceHandler{Refs: refs, Log: log.Named("reference")}
}

// List returns the active lookup rows of every kind, or of ?kind= only.
func (h *ReferenceHandler) List(c echo.Context) error {
	kinds := model.LookupKinds
	if k := model.LookupKind(c.QueryParam("kind")); k != "" {
		if k.Table() == "" {
			return badRequest(c, "unknown kind")
		}
		kinds = []model.LookupKind{k}
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	out := make(map[model.LookupKind][]model.Reference, len(kinds))
	for _, k := range kinds {
		refs, err := h.Refs.ListReferences(ctx, k, true)
		if err != nil {
			return respondError(c, h.Log, err)
		}
		out[k] = refs
	}
	return c.JSON(http.StatusOK, out)
}
