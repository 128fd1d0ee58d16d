package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// OrderHandler exposes order lifecycle endpoints.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// List godoc
// @Summary List orders
// @Tags Orders
// @Produce json
// @Param customerId query string false "Filter by customer"
// @Param employeeId query string false "Filter by employee"
// @Param serviceId query string false "Filter by service"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var filter models.OrderFilter
	filter.CustomerID = c.Query("customerId")
	filter.EmployeeID = c.Query("employeeId")
	filter.ServiceID = c.Query("serviceId")
	filter.Status = c.Query("status")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Employees and customers only see their own orders.
	if claims := claimsFromContext(c); claims != nil {
		switch claims.Role {
		case models.RoleEmployee:
			filter.EmployeeID = claims.AccountID
		case models.RoleCustomer:
			filter.CustomerID = claims.AccountID
		}
	}

	orders, total, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, &models.Pagination{
		Page: filter.Page, PageSize: filter.PageSize, TotalCount: total,
	})
}

// Get godoc
// @Summary Get one order with documents, queries and feedback
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Router /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	detail, err := h.orders.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

type createOrderPayload struct {
	CustomerID  string  `json:"customer_id" binding:"required"`
	ServiceID   string  `json:"service_id" binding:"required"`
	PackageName string  `json:"package_name" binding:"required"`
	EmployeeID  *string `json:"employee_id"`
}

// Create godoc
// @Summary Create an order
// @Description Opens an order for a customer; without an employee the first matching handler is auto-assigned
// @Tags Orders
// @Accept json
// @Produce json
// @Param payload body createOrderPayload true "Order payload"
// @Success 201 {object} response.Envelope
// @Router /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var payload createOrderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	order, err := h.orders.Create(c.Request.Context(), service.CreateOrderInput{
		CustomerID:  payload.CustomerID,
		ServiceID:   payload.ServiceID,
		PackageName: payload.PackageName,
		EmployeeID:  payload.EmployeeID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// UpdateStatus godoc
// @Summary Update order status
// @Description Accepts canonical and legacy status spellings; the transition table governs legality
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body map[string]string true "Target status"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/status [put]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var payload struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status required"))
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), payload.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// Cancel godoc
// @Summary Cancel an open order
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body map[string]string false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/cancel [put]
func (h *OrderHandler) Cancel(c *gin.Context) {
	var payload struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&payload)

	order, err := h.orders.Cancel(c.Request.Context(), c.Param("id"), payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// ExtendDueDate godoc
// @Summary Extend an order's due date
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body map[string]string true "New due date and reason"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/due-date [put]
func (h *OrderHandler) ExtendDueDate(c *gin.Context) {
	var payload struct {
		DueDate string `json:"due_date" binding:"required"`
		Reason  string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "due_date and reason required"))
		return
	}
	dueDate, err := time.Parse(time.RFC3339, payload.DueDate)
	if err != nil {
		if dueDate, err = time.Parse("2006-01-02", payload.DueDate); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "due_date must be RFC3339 or YYYY-MM-DD"))
			return
		}
	}
	order, err := h.orders.ExtendDueDate(c.Request.Context(), c.Param("id"), dueDate, payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// SendForReview godoc
// @Summary Send an order for L1 review
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/review [post]
func (h *OrderHandler) SendForReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	order, err := h.orders.SendForL1Review(c.Request.Context(), c.Param("id"), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// CompleteReview godoc
// @Summary Approve or reject a pending L1 review
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body map[string]string true "Approve flag and optional note"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/review [put]
func (h *OrderHandler) CompleteReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		Approve *bool  `json:"approve" binding:"required"`
		Note    string `json:"note"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "approve flag required"))
		return
	}
	order, err := h.orders.CompleteL1Review(c.Request.Context(), c.Param("id"), claims.AccountID, *payload.Approve, payload.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// UploadDocument godoc
// @Summary Attach a document to an open order
// @Tags Orders
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Order ID"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Router /orders/{id}/documents [post]
func (h *OrderHandler) UploadDocument(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.FromError(err))
		return
	}
	defer file.Close()

	doc, err := h.orders.UploadDocument(c.Request.Context(), c.Param("id"), claims.AccountID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// AddQuery godoc
// @Summary Open a message thread on an order
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body map[string]string true "Message"
// @Success 201 {object} response.Envelope
// @Router /orders/{id}/queries [post]
func (h *OrderHandler) AddQuery(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "message required"))
		return
	}
	q, err := h.orders.AddQuery(c.Request.Context(), c.Param("id"), claims.AccountID, payload.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, q)
}

// ReplyQuery godoc
// @Summary Reply to a query thread
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param queryId path string true "Query ID"
// @Param payload body map[string]string true "Message"
// @Success 201 {object} response.Envelope
// @Router /orders/{id}/queries/{queryId}/replies [post]
func (h *OrderHandler) ReplyQuery(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "message required"))
		return
	}
	reply, err := h.orders.ReplyQuery(c.Request.Context(), c.Param("queryId"), claims.AccountID, payload.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reply)
}

// AddFeedback godoc
// @Summary Rate a completed order
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body map[string]string true "Rating and optional comment"
// @Success 201 {object} response.Envelope
// @Router /orders/{id}/feedback [post]
func (h *OrderHandler) AddFeedback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload struct {
		Rating  int    `json:"rating" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "rating required"))
		return
	}
	fb, err := h.orders.AddFeedback(c.Request.Context(), c.Param("id"), claims.AccountID, payload.Rating, payload.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fb)
}
