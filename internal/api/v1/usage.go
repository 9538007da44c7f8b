package v1

import (
	"net/http"

	"github.com/flexprice/ebilling/internal/api/dto"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/service"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/gin-gonic/gin"
)

// UsageHandler serves packages, tenant subscriptions and credits
type UsageHandler struct {
	service service.UsageService
	log     *logger.Logger
}

func NewUsageHandler(service service.UsageService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{service: service, log: log}
}

func (h *UsageHandler) CreatePackage(c *gin.Context) {
	var req dto.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreatePackage(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *UsageHandler) ListPackages(c *gin.Context) {
	filter := types.NewPackageFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListPackages(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *UsageHandler) GetPackage(c *gin.Context) {
	resp, err := h.service.GetPackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AssignPackage godoc
// @Summary Put a tenant on a package
// @Description Closes the tenant's current cycle and opens a new one on the package
// @Tags Usage
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body dto.AssignPackageRequest true "Package"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /tenants/{id}/ebilling/subscription/assign [post]
func (h *UsageHandler) AssignPackage(c *gin.Context) {
	var req dto.AssignPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.AssignPackageToTenant(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *UsageHandler) GetUsage(c *gin.Context) {
	resp, err := h.service.GetUsageSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ApplyCredit godoc
// @Summary Adjust a tenant's document count for the current cycle
// @Tags Usage
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param request body dto.ApplyCreditRequest true "Credit"
// @Success 201 {object} dto.CreditResponse
// @Router /tenants/{id}/ebilling/credits [post]
func (h *UsageHandler) ApplyCredit(c *gin.Context) {
	var req dto.ApplyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ApplyCredit(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *UsageHandler) ListCredits(c *gin.Context) {
	filter := types.NewCreditFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}
	filter.TenantID = c.Param("id")

	resp, err := h.service.ListCredits(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
