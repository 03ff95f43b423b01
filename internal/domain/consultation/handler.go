package consultation

import (
	"net/http"
	"strconv"
	"strings"

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
	g := api.Group("", auth.RequireRole(auth.ClinicalRoles...))
	g.POST("/consultations", h.Consult)
	g.GET("/consultations", h.History)
}

func (h *Handler) Consult(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	c.Set(auth.AuditPatientKey, strings.TrimSpace(req.PatientID))
	res, err := h.svc.Consult(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err, "failed to process consultation")
	}
	return c.JSON(http.StatusOK, res.Body())
}

// History returns a patient's consultations, or service metadata when no
// patientId is given.
func (h *Handler) History(c echo.Context) error {
	patientID := strings.TrimSpace(c.QueryParam("patientId"))
	if patientID == "" {
		return c.JSON(http.StatusOK, h.svc.Metadata())
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hist, err := h.svc.History(c.Request().Context(), patientID, limit)
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch consultation history")
	}
	return c.JSON(http.StatusOK, hist)
}
