package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/internal/service"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// AccountHandler exposes account management endpoints.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// List godoc
// @Summary List accounts
// @Tags Accounts
// @Produce json
// @Param role query string false "Filter by role"
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Search name/email/id"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	var filter models.AccountFilter
	if raw := strings.ToUpper(c.Query("role")); raw != "" {
		role := models.Role(raw)
		filter.Role = &role
	}
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

	accounts, total, err := h.accounts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, &models.Pagination{
		Page: filter.Page, PageSize: filter.PageSize, TotalCount: total,
	})
}

// Get godoc
// @Summary Get one account
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// Create godoc
// @Summary Create an account
// @Description Register a staff or customer account; the creator becomes the supervisor of created staff
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body service.CreateAccountRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Router /accounts [post]
func (h *AccountHandler) Create(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	var creator *models.Account
	if claims := claimsFromContext(c); claims != nil {
		creatorAccount, err := h.accounts.Get(c.Request.Context(), claims.AccountID)
		if err == nil {
			creator = creatorAccount
		}
	}

	account, err := h.accounts.Create(c.Request.Context(), req, creator)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, account)
}

// Update godoc
// @Summary Update account profile
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body service.UpdateAccountRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id} [put]
func (h *AccountHandler) Update(c *gin.Context) {
	var req service.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	account, err := h.accounts.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// SetActive godoc
// @Summary Activate or deactivate an account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body map[string]bool true "Active flag"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id}/active [put]
func (h *AccountHandler) SetActive(c *gin.Context) {
	var payload struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "active flag required"))
		return
	}
	account, err := h.accounts.SetActive(c.Request.Context(), c.Param("id"), *payload.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// ChangePassword godoc
// @Summary Change own password
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password payload"
// @Success 204 {object} response.Envelope
// @Router /accounts/change-password [post]
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), claims.AccountID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
