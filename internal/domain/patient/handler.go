package patient

import (
	"net/http"
	"strings"
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
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleCoordinator))
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PUT("/patients/:id/profile", h.SaveProfile)
}

// ListPatients serves the patient directory. Store failures are reported
// with a generic message only.
func (h *Handler) ListPatients(c echo.Context) error {
	limit := pagination.LimitFromContext(c, pagination.Directory)
	results, limit, err := h.svc.Directory(c.Request().Context(), c.QueryParam("search"), limit)
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch patients")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(results, len(results), limit))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch patient")
	}
	return c.JSON(http.StatusOK, rec)
}

type createPatientRequest struct {
	ClinicID    uuid.UUID `json:"clinicId"`
	MRN         string    `json:"mrn"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	Email       *string   `json:"email"`
	Phone       *string   `json:"phone"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p := &Patient{
		ClinicID:  req.ClinicID,
		MRN:       req.MRN,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if dob := strings.TrimSpace(req.DateOfBirth); dob != "" {
		t, err := time.Parse("2006-01-02", dob)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "dateOfBirth must be YYYY-MM-DD")
		}
		p.DateOfBirth = &t
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err, "failed to create patient")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) SaveProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	var pr Profile
	if err := c.Bind(&pr); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pr.PatientID = id
	if err := h.svc.SaveProfile(c.Request().Context(), &pr); err != nil {
		return apperr.HTTPError(err, "failed to save profile")
	}
	return c.JSON(http.StatusOK, pr)
}
