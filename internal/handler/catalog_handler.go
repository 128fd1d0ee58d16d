package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// CatalogHandler exposes service catalog endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List godoc
// @Summary List catalog services
// @Tags Catalog
// @Produce json
// @Param category query string false "Filter by category"
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /services [get]
func (h *CatalogHandler) List(c *gin.Context) {
	var filter models.ServiceFilter
	filter.Category = c.Query("category")
	if raw := c.Query("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	services, total, err := h.catalog.ListServices(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, services, &models.Pagination{
		Page: filter.Page, PageSize: filter.PageSize, TotalCount: total,
	})
}

// Get godoc
// @Summary Get one service with packages
// @Tags Catalog
// @Produce json
// @Param id path string true "Service ID"
// @Success 200 {object} response.Envelope
// @Router /services/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	detail, err := h.catalog.GetServiceDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

type createServicePayload struct {
	service.CreateServiceRequest
	Packages []service.PackageRequest `json:"packages"`
}

// Create godoc
// @Summary Create a catalog service
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body createServicePayload true "Service payload"
// @Success 201 {object} response.Envelope
// @Router /services [post]
func (h *CatalogHandler) Create(c *gin.Context) {
	var payload createServicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.catalog.CreateService(c.Request.Context(), payload.CreateServiceRequest, payload.Packages)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

type updateServicePayload struct {
	service.CreateServiceRequest
	Active *bool `json:"active"`
}

// Update godoc
// @Summary Update a catalog service
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Service ID"
// @Param payload body updateServicePayload true "Service payload"
// @Success 200 {object} response.Envelope
// @Router /services/{id} [put]
func (h *CatalogHandler) Update(c *gin.Context) {
	var payload updateServicePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	svc, err := h.catalog.UpdateService(c.Request.Context(), c.Param("id"), payload.CreateServiceRequest, payload.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, svc, nil)
}

// UpdatePackage godoc
// @Summary Update a service package
// @Description Rewrites a package tier; a turnaround change recomputes due dates of open orders
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Service ID"
// @Param name path string true "Package name"
// @Param payload body service.PackageRequest true "Package payload"
// @Success 200 {object} response.Envelope
// @Router /services/{id}/packages/{name} [put]
func (h *CatalogHandler) UpdatePackage(c *gin.Context) {
	var req service.PackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pkg, sweep, err := h.catalog.UpdatePackage(c.Request.Context(), c.Param("id"), c.Param("name"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"package": pkg, "due_date_sweep": sweep}, nil)
}
