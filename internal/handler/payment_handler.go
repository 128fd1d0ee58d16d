package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// PaymentHandler exposes the package purchase flow.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type checkoutPayload struct {
	ServiceID   string `json:"service_id" binding:"required"`
	PackageName string `json:"package_name" binding:"required"`
}

// Checkout godoc
// @Summary Create a gateway order for a package purchase
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body checkoutPayload true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Router /payments/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload checkoutPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	checkout, err := h.payments.Checkout(c.Request.Context(), claims.AccountID, payload.ServiceID, payload.PackageName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, checkout)
}

// Verify godoc
// @Summary Verify a gateway payment and open the order
// @Description Validates the gateway signature; a replayed callback returns the existing order
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.VerifyPaymentRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Router /payments/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	order, err := h.payments.Verify(c.Request.Context(), claims.AccountID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// History godoc
// @Summary List the caller's payment history
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payments, err := h.payments.History(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}
