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

// LeadHandler exposes the lead pipeline endpoints.
type LeadHandler struct {
	leads *service.LeadService
}

// NewLeadHandler constructs LeadHandler.
func NewLeadHandler(leads *service.LeadService) *LeadHandler {
	return &LeadHandler{leads: leads}
}

// Create godoc
// @Summary Submit an inquiry
// @Description Public endpoint recording a new lead against a catalog service
// @Tags Leads
// @Accept json
// @Produce json
// @Param payload body service.CreateLeadRequest true "Inquiry payload"
// @Success 201 {object} response.Envelope
// @Router /leads [post]
func (h *LeadHandler) Create(c *gin.Context) {
	var req service.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lead, err := h.leads.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lead)
}

// List godoc
// @Summary List leads
// @Tags Leads
// @Produce json
// @Param status query string false "Filter by status"
// @Param employeeId query string false "Filter by assignee"
// @Param serviceId query string false "Filter by service"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leads [get]
func (h *LeadHandler) List(c *gin.Context) {
	var filter models.LeadFilter
	filter.Status = c.Query("status")
	filter.EmployeeID = c.Query("employeeId")
	filter.ServiceID = c.Query("serviceId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Employees only see their own pipeline.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleEmployee {
		filter.EmployeeID = claims.AccountID
	}

	leads, total, err := h.leads.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leads, &models.Pagination{
		Page: filter.Page, PageSize: filter.PageSize, TotalCount: total,
	})
}

// Get godoc
// @Summary Get one lead
// @Tags Leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /leads/{id} [get]
func (h *LeadHandler) Get(c *gin.Context) {
	lead, err := h.leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Assign godoc
// @Summary Assign a lead to an employee
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param payload body map[string]string true "Employee ID"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/assign [put]
func (h *LeadHandler) Assign(c *gin.Context) {
	var payload struct {
		EmployeeID string `json:"employee_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "employee_id required"))
		return
	}
	lead, err := h.leads.AssignToEmployee(c.Request.Context(), c.Param("id"), payload.EmployeeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Accept godoc
// @Summary Accept an assigned lead
// @Tags Leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/accept [put]
func (h *LeadHandler) Accept(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	lead, err := h.leads.Accept(c.Request.Context(), c.Param("id"), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Decline godoc
// @Summary Decline an assigned lead
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param payload body map[string]string true "Decline reason"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/decline [put]
func (h *LeadHandler) Decline(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	// Body is optional; the service records a placeholder reason.
	_ = c.ShouldBindJSON(&payload)
	lead, err := h.leads.Decline(c.Request.Context(), c.Param("id"), claims.AccountID, payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lead, nil)
}

// Convert godoc
// @Summary Convert an accepted lead
// @Description Creates (or reuses) the customer account and opens an order for the lead's service
// @Tags Leads
// @Accept json
// @Produce json
// @Param id path string true "Lead ID"
// @Param payload body map[string]string false "Optional package name"
// @Success 200 {object} response.Envelope
// @Router /leads/{id}/convert [post]
func (h *LeadHandler) Convert(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		PackageName string `json:"package_name"`
	}
	// Body is optional; the cheapest package is the fallback.
	_ = c.ShouldBindJSON(&payload)

	result, err := h.leads.Convert(c.Request.Context(), c.Param("id"), claims.AccountID, payload.PackageName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
