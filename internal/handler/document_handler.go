package handler

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
	"github.com/noah-isme/taxfiling-tracker/pkg/response"
)

type documentOpener interface {
	Open(ctx context.Context, token string) (*os.File, string, error)
}

// DocumentHandler streams documents referenced by signed links.
type DocumentHandler struct {
	documents documentOpener
}

// NewDocumentHandler builds the handler.
func NewDocumentHandler(documents documentOpener) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Download godoc
// @Summary Download a document through a signed link
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "token is required"))
		return
	}
	file, name, err := h.documents.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document"))
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	response.Stream(c, name, contentType, info.Size(), file)
}
