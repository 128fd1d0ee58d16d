package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// WalletHandler exposes referral wallet endpoints.
type WalletHandler struct {
	wallets *service.WalletService
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Balance godoc
// @Summary The caller's wallet with transactions
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /wallet [get]
func (h *WalletHandler) Balance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	wallet, txs, err := h.wallets.Balance(c.Request.Context(), claims.AccountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"wallet": wallet, "transactions": txs}, nil)
}

type walletAdjustPayload struct {
	AccountID string  `json:"account_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	Note      string  `json:"note" binding:"required"`
}

// Adjust godoc
// @Summary Credit or debit a wallet
// @Description Positive amounts credit, negative amounts debit; debits never overdraw
// @Tags Wallet
// @Accept json
// @Produce json
// @Param payload body walletAdjustPayload true "Adjustment payload"
// @Success 200 {object} response.Envelope
// @Router /wallet/adjust [post]
func (h *WalletHandler) Adjust(c *gin.Context) {
	var payload walletAdjustPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	var err error
	var wallet interface{}
	if payload.Amount >= 0 {
		wallet, err = h.wallets.Credit(c.Request.Context(), payload.AccountID, payload.Amount, payload.Note)
	} else {
		wallet, err = h.wallets.Debit(c.Request.Context(), payload.AccountID, -payload.Amount, payload.Note)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wallet, nil)
}
