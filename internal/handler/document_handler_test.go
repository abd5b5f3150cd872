package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

type documentOpenerMock struct {
	path      string
	name      string
	err       error
	lastToken string
}

func (m *documentOpenerMock) Open(ctx context.Context, token string) (*os.File, string, error) {
	m.lastToken = token
	if m.err != nil {
		return nil, "", m.err
	}
	file, err := os.Open(m.path)
	return file, m.name, err
}

func TestDocumentHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600))
	opener := &documentOpenerMock{path: path, name: "ABCDEFGHJK-w2.pdf"}
	handler := NewDocumentHandler(opener)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/documents/download?token=tok", nil)

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", opener.lastToken)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="ABCDEFGHJK-w2.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 body", w.Body.String())
}

func TestDocumentHandlerRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	opener := &documentOpenerMock{}
	handler := NewDocumentHandler(opener)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/documents/download", nil)

	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, opener.lastToken)
}

func TestDocumentHandlerInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	opener := &documentOpenerMock{err: appErrors.Wrap(errors.New("bad signature"), appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired link")}
	handler := NewDocumentHandler(opener)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/documents/download?token=forged", nil)

	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
