package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// AssignmentHandler exposes customer-to-employee assignment endpoints.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs AssignmentHandler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

type assignPayload struct {
	CustomerIDs []string `json:"customer_ids" binding:"required,min=1"`
	ServiceID   string   `json:"service_id" binding:"required"`
	EmployeeID  string   `json:"employee_id" binding:"required"`
}

// Assign godoc
// @Summary Assign customers to an employee
// @Description Binds each customer's earliest matching order to the employee; failures are reported per customer
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body assignPayload true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var payload assignPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	results := h.assignments.AssignBatch(c.Request.Context(), payload.CustomerIDs, payload.ServiceID, payload.EmployeeID)
	response.JSON(c, http.StatusOK, results, nil)
}

// Backfill godoc
// @Summary Backfill unassigned orders onto an employee
// @Tags Assignments
// @Produce json
// @Param id path string true "Employee ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/backfill/{id} [post]
func (h *AssignmentHandler) Backfill(c *gin.Context) {
	results, err := h.assignments.BackfillUnassigned(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// MyCustomers godoc
// @Summary List the caller's assigned customers
// @Description Served from the denormalized assignment mirror
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments/my-customers [get]
func (h *AssignmentHandler) MyCustomers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	customers, err := h.assignments.CustomersOf(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, customers, nil)
}

// RefreshMirror godoc
// @Summary Rebuild mirror snapshots for one customer
// @Tags Assignments
// @Produce json
// @Param id path string true "Customer ID"
// @Success 204 {object} response.Envelope
// @Router /assignments/refresh/{id} [post]
func (h *AssignmentHandler) RefreshMirror(c *gin.Context) {
	if err := h.assignments.RefreshCustomerMirrors(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
