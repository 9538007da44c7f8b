package cron

import (
	"net/http"

	"github.com/flexprice/ebilling/internal/api/dto"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler runs the scheduled document passes
type DocumentHandler struct {
	documentService service.DocumentService
	logger          *logger.Logger
}

func NewDocumentHandler(documentService service.DocumentService, logger *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// ReconcileDocuments polls the provider for every SENT document. The body
// is optional.
func (h *DocumentHandler) ReconcileDocuments(c *gin.Context) {
	req, ok := h.bindPass(c)
	if !ok {
		return
	}

	h.logger.Infow("starting document reconcile pass", "tenant_id", req.TenantID, "limit", req.Limit)
	resp, err := h.documentService.ReconcileDocuments(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorw("document reconcile pass failed", "error", err)
		c.Error(err)
		return
	}
	h.logger.Infow("document reconcile pass finished",
		"checked", resp.Checked,
		"accepted", resp.Accepted,
		"rejected", resp.Rejected,
		"errors", resp.Errors,
	)

	c.JSON(http.StatusOK, resp)
}

// ResubmitDocuments submits every document flagged RETRY
func (h *DocumentHandler) ResubmitDocuments(c *gin.Context) {
	req, ok := h.bindPass(c)
	if !ok {
		return
	}

	resp, err := h.documentService.ResubmitRetries(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorw("document resubmit pass failed", "error", err)
		c.Error(err)
		return
	}
	h.logger.Infow("document resubmit pass finished",
		"attempted", resp.Attempted,
		"sent", resp.Sent,
		"failed", resp.Failed,
	)

	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) bindPass(c *gin.Context) (*dto.ReconcileDocumentsRequest, bool) {
	var req dto.ReconcileDocumentsRequest
	if c.Request.ContentLength == 0 {
		return &req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return nil, false
	}
	return &req, true
}
