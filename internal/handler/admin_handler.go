package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/dto"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
	"github.com/noah-isme/taxfiling-tracker/pkg/response"
)

type adminQueryService interface {
	ListRequests(ctx context.Context, filter models.ListFilter) (*models.ListResult, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
}

type transitionApplier interface {
	ApplyTransition(ctx context.Context, in service.TransitionInput) (*models.TaxRequest, error)
}

type noteAdder interface {
	AddNote(ctx context.Context, recordID, note, actorID string) (*models.AdminNote, error)
}

type lifecycleManager interface {
	SoftDelete(ctx context.Context, id, actorID string) error
	Restore(ctx context.Context, id, actorID string) error
}

type requestExporter interface {
	Export(ctx context.Context, filter models.ListFilter, format string) (*service.ExportResult, error)
}

type statusCatalog interface {
	Steps() []catalog.StatusStep
}

// AdminHandlerParams groups the admin handler collaborators.
type AdminHandlerParams struct {
	Queries     adminQueryService
	Transitions transitionApplier
	Notes       noteAdder
	Lifecycle   lifecycleManager
	Exports     requestExporter
	Catalog     statusCatalog
}

// AdminHandler exposes the staff back office endpoints.
type AdminHandler struct {
	queries     adminQueryService
	transitions transitionApplier
	notes       noteAdder
	lifecycle   lifecycleManager
	exports     requestExporter
	catalog     statusCatalog
}

// NewAdminHandler builds the handler.
func NewAdminHandler(params AdminHandlerParams) *AdminHandler {
	return &AdminHandler{
		queries:     params.Queries,
		transitions: params.Transitions,
		notes:       params.Notes,
		lifecycle:   params.Lifecycle,
		exports:     params.Exports,
		catalog:     params.Catalog,
	}
}

// List godoc
// @Summary List requests with filters
// @Tags Admin
// @Produce json
// @Param status query string false "Exact status"
// @Param search query string false "Name, email or confirmation number"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Param sort query string false "asc or desc by creation date"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/requests [get]
func (h *AdminHandler) List(c *gin.Context) {
	result, err := h.queries.ListRequests(c.Request.Context(), listFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{
		Page:       result.Page,
		PageSize:   len(result.Items),
		TotalCount: result.Total,
		PageCount:  result.PageCount,
	}
	response.JSON(c, http.StatusOK, result, pagination)
}

// UpdateStatus godoc
// @Summary Move a request to a new status
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/requests/{id}/status [put]
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	paymentDate, err := parseDate(payload.PaymentDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.transitions.ApplyTransition(c.Request.Context(), service.TransitionInput{
		RecordID:            c.Param("id"),
		Status:              payload.Status,
		ActorID:             claims.UserID,
		Comment:             payload.Comment,
		DescriptionOverride: payload.Description,
		PaymentDate:         paymentDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated.Masked(), nil)
}

// AddNote godoc
// @Summary Append an internal note
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AddNoteRequest true "Note payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/requests/{id}/notes [post]
func (h *AdminHandler) AddNote(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.AddNoteRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid note payload"))
		return
	}
	note, err := h.notes.AddNote(c.Request.Context(), c.Param("id"), payload.Note, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, note)
}

// Delete godoc
// @Summary Soft delete a request
// @Tags Admin
// @Param id path string true "Request ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/requests/{id} [delete]
func (h *AdminHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.SoftDelete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore godoc
// @Summary Restore a soft deleted request
// @Tags Admin
// @Param id path string true "Request ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/requests/{id}/restore [post]
func (h *AdminHandler) Restore(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.lifecycle.Restore(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Statistics godoc
// @Summary Aggregate counts and revenue
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/statistics [get]
func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.queries.GetStatistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Statuses returns the status catalog in display order.
// @Summary List the status catalog
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/statuses [get]
func (h *AdminHandler) Statuses(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.catalog.Steps(), nil)
}

// Export godoc
// @Summary Export the filtered listing
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Exact status"
// @Param search query string false "Search text"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /admin/requests/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	result, err := h.exports.Export(c.Request.Context(), listFilterFromQuery(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Export-Rows", strconv.Itoa(result.Rows))
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
