package treatment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fertility/cds/internal/platform/apperr"
	"github.com/fertility/cds/internal/platform/auth"
	"github.com/fertility/cds/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.ClinicalRoles...))
	readGroup.GET("/patients/:id/cycles", h.ListCycles)
	readGroup.GET("/patients/:id/lab-results", h.ListLabResults)
	readGroup.GET("/patients/:id/documents", h.ListDocuments)
	readGroup.GET("/cycles/:id", h.GetCycle)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleEmbryologist))
	writeGroup.POST("/patients/:id/cycles", h.CreateCycle)
	writeGroup.POST("/patients/:id/lab-results", h.CreateLabResult)
	writeGroup.POST("/patients/:id/documents", h.CreateDocument)
	writeGroup.PATCH("/cycles/:id/status", h.UpdateCycleStatus)
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return id, nil
}

func parseDate(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, field+" must be YYYY-MM-DD")
	}
	return &t, nil
}

// -- Cycles --

type createCycleRequest struct {
	CycleNumber int     `json:"cycleNumber"`
	Protocol    *string `json:"protocol"`
	Status      string  `json:"status"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Notes       *string `json:"notes"`
}

func (h *Handler) CreateCycle(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	var req createCycleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cy := &Cycle{
		PatientID:   patientID,
		CycleNumber: req.CycleNumber,
		Protocol:    req.Protocol,
		Status:      CycleStatus(req.Status),
		Notes:       req.Notes,
	}
	if cy.StartDate, err = parseDate("startDate", req.StartDate); err != nil {
		return err
	}
	if cy.EndDate, err = parseDate("endDate", req.EndDate); err != nil {
		return err
	}
	if err := h.svc.CreateCycle(c.Request().Context(), cy); err != nil {
		return apperr.HTTPError(err, "failed to create cycle")
	}
	return c.JSON(http.StatusCreated, cy)
}

func (h *Handler) ListCycles(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	cycles, err := h.svc.ListCycles(c.Request().Context(), patientID, pagination.LimitFromContext(c, pagination.Records))
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch cycles")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": cycles})
}

func (h *Handler) GetCycle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "cycle not found")
	}
	cy, err := h.svc.GetCycle(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch cycle")
	}
	return c.JSON(http.StatusOK, cy)
}

func (h *Handler) UpdateCycleStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "cycle not found")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cy, err := h.svc.UpdateCycleStatus(c.Request().Context(), id, CycleStatus(req.Status))
	if err != nil {
		return apperr.HTTPError(err, "failed to update cycle")
	}
	return c.JSON(http.StatusOK, cy)
}

// -- Lab results --

type createLabResultRequest struct {
	CycleID    *uuid.UUID      `json:"cycleId"`
	TestType   string          `json:"testType"`
	Values     json.RawMessage `json:"values"`
	ResultDate *time.Time      `json:"resultDate"`
	Notes      *string         `json:"notes"`
}

func (h *Handler) CreateLabResult(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	var req createLabResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	l := &LabResult{
		PatientID: patientID,
		CycleID:   req.CycleID,
		TestType:  req.TestType,
		Values:    req.Values,
		Notes:     req.Notes,
	}
	if req.ResultDate != nil {
		l.ResultDate = *req.ResultDate
	}
	if err := h.svc.CreateLabResult(c.Request().Context(), l); err != nil {
		return apperr.HTTPError(err, "failed to create lab result")
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) ListLabResults(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	results, err := h.svc.ListLabResults(c.Request().Context(), patientID, pagination.LimitFromContext(c, pagination.Records))
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch lab results")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": results})
}

// -- Documents --

func (h *Handler) CreateDocument(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	var d Document
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d.PatientID = patientID
	if err := h.svc.CreateDocument(c.Request().Context(), &d); err != nil {
		return apperr.HTTPError(err, "failed to create document")
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.ListDocuments(c.Request().Context(), patientID, pagination.LimitFromContext(c, pagination.Records))
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch documents")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": docs})
}
