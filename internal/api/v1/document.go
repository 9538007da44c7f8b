package v1

import (
	"fmt"
	"net/http"

	"github.com/flexprice/ebilling/internal/api/dto"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/service"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	service service.DocumentService
	log     *logger.Logger
}

func NewDocumentHandler(service service.DocumentService, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, log: log}
}

// CreateDocument godoc
// @Summary Queue a fiscal document
// @Tags Documents
// @Accept json
// @Produce json
// @Param document body dto.CreateDocumentRequest true "Document"
// @Success 201 {object} dto.DocumentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /ebilling/documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateDocument(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListDocuments godoc
// @Summary List queued documents
// @Tags Documents
// @Produce json
// @Param filter query types.DocumentFilter false "Filter"
// @Success 200 {object} dto.ListDocumentsResponse
// @Router /ebilling/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	filter := types.NewDocumentFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		h.log.Debugw("failed to bind document filter", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	resp, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitDocument godoc
// @Summary Send a document to the provider
// @Description The provider outcome is on the returned document, a rejected submission still answers 200
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} dto.DocumentResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Router /ebilling/documents/{id}/submit [post]
func (h *DocumentHandler) SubmitDocument(c *gin.Context) {
	resp, err := h.service.SubmitDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) RetryDocument(c *gin.Context) {
	resp, err := h.service.RetryDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DownloadPDF godoc
// @Summary Download the document PDF
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 200 {file} application/pdf
// @Router /ebilling/documents/{id}/pdf [get]
func (h *DocumentHandler) DownloadPDF(c *gin.Context) {
	file, err := h.service.DownloadDocumentPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Errorw("failed to download document pdf", "error", err, "document_id", c.Param("id"))
		c.Error(err)
		return
	}
	sendFile(c, file)
}

// DownloadAttached godoc
// @Summary Download the attached document bundle
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 200 {file} application/octet-stream
// @Router /ebilling/documents/{id}/attached [get]
func (h *DocumentHandler) DownloadAttached(c *gin.Context) {
	file, err := h.service.DownloadDocumentAttached(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Errorw("failed to download attached document", "error", err, "document_id", c.Param("id"))
		c.Error(err)
		return
	}
	sendFile(c, file)
}

func sendFile(c *gin.Context, file *dto.DocumentFileResponse) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
