package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// DashboardHandler exposes the role-scoped home screens.
type DashboardHandler struct {
	dashboards *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboards *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards}
}

// Admin godoc
// @Summary Portal-wide counters
// @Tags Dashboards
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	dashboard, err := h.dashboards.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Employee godoc
// @Summary The caller's assigned customers and workload
// @Tags Dashboards
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/employee [get]
func (h *DashboardHandler) Employee(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	dashboard, err := h.dashboards.Employee(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Customer godoc
// @Summary The caller's orders and wallet balance
// @Tags Dashboards
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/customer [get]
func (h *DashboardHandler) Customer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.Role != models.RoleCustomer {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	dashboard, err := h.dashboards.Customer(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}
