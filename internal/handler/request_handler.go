package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/taxfiling-tracker/internal/dto"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
	"github.com/noah-isme/taxfiling-tracker/pkg/response"
)

type intakeService interface {
	Create(ctx context.Context, payload dto.CreateTaxRequest, actorID string) (*models.TaxRequest, error)
	AttachDocument(ctx context.Context, recordID string, viewer service.Viewer, upload service.Upload) (*models.TaxRequest, error)
}

type requestReader interface {
	GetRequest(ctx context.Context, id string, viewer service.Viewer) (*models.TaxRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.TaxRequest, error)
}

type documentLinker interface {
	Link(ctx context.Context, recordID string, index int, viewer service.Viewer) (*service.DocumentLink, error)
}

// RequestHandler serves the applicant facing request endpoints.
type RequestHandler struct {
	intake    intakeService
	reader    requestReader
	documents documentLinker
}

// NewRequestHandler builds the handler.
func NewRequestHandler(intake intakeService, reader requestReader, documents documentLinker) *RequestHandler {
	return &RequestHandler{intake: intake, reader: reader, documents: documents}
}

// Create godoc
// @Summary Submit a tax filing request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaxRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.CreateTaxRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	created, err := h.intake.Create(c.Request.Context(), payload, viewer.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List the caller's requests
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.reader.ListByUser(c.Request.Context(), viewer.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one request with its status history
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.reader.GetRequest(c.Request.Context(), c.Param("id"), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UploadDocument godoc
// @Summary Attach a W-2 document
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Request ID"
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests/{id}/documents [post]
func (h *RequestHandler) UploadDocument(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file could not be read"))
		return
	}
	defer file.Close() //nolint:errcheck

	updated, err := h.intake.AttachDocument(c.Request.Context(), c.Param("id"), viewer, service.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, updated)
}

// DocumentLink godoc
// @Summary Get a signed download link for an attached document
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Param index path int true "Document position"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/documents/{index}/link [get]
func (h *RequestHandler) DocumentLink(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document index must be a number"))
		return
	}
	link, err := h.documents.Link(c.Request.Context(), c.Param("id"), index, viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DocumentLinkResponse{
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil)
}
