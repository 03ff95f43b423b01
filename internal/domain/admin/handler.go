package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	g.GET("/stats", h.GetStats)
}

func (h *Handler) GetStats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err, "failed to gather statistics")
	}
	return c.JSON(http.StatusOK, st)
}
