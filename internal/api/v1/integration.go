package v1

import (
	"net/http"

	"github.com/flexprice/ebilling/internal/api/dto"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/service"
	"github.com/gin-gonic/gin"
)

type IntegrationHandler struct {
	service service.IntegrationService
	log     *logger.Logger
}

func NewIntegrationHandler(service service.IntegrationService, log *logger.Logger) *IntegrationHandler {
	return &IntegrationHandler{service: service, log: log}
}

// GetConfig godoc
// @Summary Get a tenant's provider configuration
// @Tags Integration
// @Produce json
// @Param tenant_id query string true "Tenant ID"
// @Success 200 {object} dto.IntegrationConfigResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /matias/config [get]
func (h *IntegrationHandler) GetConfig(c *gin.Context) {
	tenantID, ok := requireTenantQuery(c)
	if !ok {
		return
	}

	resp, err := h.service.GetConfig(c.Request.Context(), tenantID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SaveConfig godoc
// @Summary Create or update a tenant's provider configuration
// @Tags Integration
// @Accept json
// @Produce json
// @Param config body dto.SaveIntegrationConfigRequest true "Configuration"
// @Success 200 {object} dto.IntegrationConfigResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /matias/config [post]
func (h *IntegrationHandler) SaveConfig(c *gin.Context) {
	var req dto.SaveIntegrationConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.SaveConfig(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// TestConnection godoc
// @Summary Log in to the provider with the tenant credentials
// @Tags Integration
// @Accept json
// @Produce json
// @Param request body dto.TestConnectionRequest true "Tenant"
// @Success 200 {object} dto.TestConnectionResponse
// @Router /matias/test-connection [post]
func (h *IntegrationHandler) TestConnection(c *gin.Context) {
	var req dto.TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.TestConnection(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *IntegrationHandler) TestPlatformConnection(c *gin.Context) {
	resp, err := h.service.TestPlatformConnection(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetStatus godoc
// @Summary Integration health for a tenant
// @Tags Integration
// @Produce json
// @Param tenant_id query string true "Tenant ID"
// @Success 200 {object} dto.IntegrationStatusResponse
// @Router /matias/status [get]
func (h *IntegrationHandler) GetStatus(c *gin.Context) {
	tenantID, ok := requireTenantQuery(c)
	if !ok {
		return
	}

	resp, err := h.service.GetIntegrationStatus(c.Request.Context(), tenantID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetLastDocument godoc
// @Summary Last number the provider issued for a resolution
// @Tags Integration
// @Produce json
// @Param request query dto.LastDocumentRequest true "Series"
// @Success 200 {object} dto.LastDocumentResponse
// @Router /matias/documents/last [get]
func (h *IntegrationHandler) GetLastDocument(c *gin.Context) {
	var req dto.LastDocumentRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetLastDocumentNumber(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func requireTenantQuery(c *gin.Context) (string, bool) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.Error(ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation))
		return "", false
	}
	return tenantID, true
}
