package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// ExportHandler serves downloadable CSV and PDF reports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

func exportFormat(c *gin.Context) service.ExportFormat {
	return service.ExportFormat(c.DefaultQuery("format", "csv"))
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

// Orders godoc
// @Summary Download an order report
// @Tags Exports
// @Produce text/csv,application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Order status filter"
// @Param employee_id query string false "Employee filter"
// @Param service_id query string false "Service filter"
// @Success 200 {file} file
// @Router /exports/orders [get]
func (h *ExportHandler) Orders(c *gin.Context) {
	filter := models.OrderFilter{
		Status:     c.Query("status"),
		EmployeeID: c.Query("employee_id"),
		CustomerID: c.Query("customer_id"),
		ServiceID:  c.Query("service_id"),
	}
	result, err := h.exports.Orders(c.Request.Context(), filter, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// Leads godoc
// @Summary Download a lead report
// @Tags Exports
// @Produce text/csv,application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Lead status filter"
// @Param employee_id query string false "Employee filter"
// @Success 200 {file} file
// @Router /exports/leads [get]
func (h *ExportHandler) Leads(c *gin.Context) {
	filter := models.LeadFilter{
		Status:     c.Query("status"),
		EmployeeID: c.Query("employee_id"),
		ServiceID:  c.Query("service_id"),
	}
	result, err := h.exports.Leads(c.Request.Context(), filter, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// CustomerPayments godoc
// @Summary Download one customer's payment history
// @Tags Exports
// @Produce text/csv,application/pdf
// @Param id path string true "Customer ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /exports/payments/{id} [get]
func (h *ExportHandler) CustomerPayments(c *gin.Context) {
	customerID := c.Param("id")
	if customerID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "customer id is required"))
		return
	}
	result, err := h.exports.CustomerPayments(c.Request.Context(), customerID, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}
