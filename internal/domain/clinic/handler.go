package clinic

import (
	"net/http"

	"github.com/google/uuid"
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
	readGroup := api.Group("", auth.RequireRole(auth.ClinicalRoles...))
	readGroup.GET("/clinics", h.ListClinics)
	readGroup.GET("/clinics/:id", h.GetClinic)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/clinics", h.CreateClinic)
	adminGroup.GET("/clinics/:id/users", h.ListUsers)
	adminGroup.POST("/clinics/:id/users", h.CreateUser)
}

func (h *Handler) CreateClinic(c echo.Context) error {
	var cl Clinic
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreateClinic(c.Request().Context(), &cl); err != nil {
		return apperr.HTTPError(err, "failed to create clinic")
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClinic(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.GetClinic(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch clinic")
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClinics(c echo.Context) error {
	clinics, err := h.svc.ListClinics(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch clinics")
	}
	if clinics == nil {
		clinics = []*Clinic{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": clinics})
}

func (h *Handler) CreateUser(c echo.Context) error {
	clinicID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var u User
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u.ClinicID = clinicID
	if err := h.svc.CreateUser(c.Request().Context(), &u); err != nil {
		return apperr.HTTPError(err, "failed to create user")
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	clinicID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	users, err := h.svc.ListUsers(c.Request().Context(), clinicID)
	if err != nil {
		return apperr.HTTPError(err, "failed to fetch users")
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": users})
}
