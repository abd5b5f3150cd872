package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taxfiling-tracker/internal/dto"
	"github.com/noah-isme/taxfiling-tracker/internal/middleware"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/internal/service"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

type intakeServiceMock struct {
	createResp    *models.TaxRequest
	createErr     error
	lastPayload   dto.CreateTaxRequest
	lastActor     string
	attachResp    *models.TaxRequest
	attachErr     error
	lastUpload    service.Upload
	uploadedBytes []byte
	lastViewer    service.Viewer
	createCalled  bool
	attachCalled  bool
}

func (m *intakeServiceMock) Create(ctx context.Context, payload dto.CreateTaxRequest, actorID string) (*models.TaxRequest, error) {
	m.createCalled = true
	m.lastPayload = payload
	m.lastActor = actorID
	return m.createResp, m.createErr
}

func (m *intakeServiceMock) AttachDocument(ctx context.Context, recordID string, viewer service.Viewer, upload service.Upload) (*models.TaxRequest, error) {
	m.attachCalled = true
	m.lastViewer = viewer
	m.lastUpload = upload
	m.uploadedBytes, _ = io.ReadAll(upload.Content)
	return m.attachResp, m.attachErr
}

type requestReaderMock struct {
	getResp    *models.TaxRequest
	getErr     error
	listResp   []models.TaxRequest
	listErr    error
	lastID     string
	lastViewer service.Viewer
	lastUserID string
}

func (m *requestReaderMock) GetRequest(ctx context.Context, id string, viewer service.Viewer) (*models.TaxRequest, error) {
	m.lastID = id
	m.lastViewer = viewer
	return m.getResp, m.getErr
}

func (m *requestReaderMock) ListByUser(ctx context.Context, userID string) ([]models.TaxRequest, error) {
	m.lastUserID = userID
	return m.listResp, m.listErr
}

type documentLinkerMock struct {
	resp      *service.DocumentLink
	err       error
	lastIndex int
}

func (m *documentLinkerMock) Link(ctx context.Context, recordID string, index int, viewer service.Viewer) (*service.DocumentLink, error) {
	m.lastIndex = index
	return m.resp, m.err
}

func userContext(w *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})
	return c
}

func decodeError(t *testing.T, body []byte) *appErrors.Error {
	t.Helper()
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error
}

func TestRequestHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	intake := &intakeServiceMock{createResp: &models.TaxRequest{ID: "req-1", ConfirmationNumber: "ABCDEFGHJK"}}
	handler := NewRequestHandler(intake, &requestReaderMock{}, &documentLinkerMock{})

	body := `{"ssn":"123456789","fullName":"Ana","serviceLevel":"premium","price":150}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c := userContext(w, req)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, intake.createCalled)
	assert.Equal(t, "user-1", intake.lastActor)
	assert.Equal(t, models.ServiceLevelPremium, intake.lastPayload.ServiceLevel)
	assert.Equal(t, float64(150), intake.lastPayload.Price)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	intake := &intakeServiceMock{}
	handler := NewRequestHandler(intake, &requestReaderMock{}, &documentLinkerMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(`{"ssn":`))
	req.Header.Set("Content-Type", "application/json")
	c := userContext(w, req)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, intake.createCalled)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeError(t, w.Body.Bytes()).Code)
}

func TestRequestHandlerRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&intakeServiceMock{}, &requestReaderMock{}, &documentLinkerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/requests", nil)

	handler.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestHandlerGetMapsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &requestReaderMock{getErr: appErrors.ErrNotFound}
	handler := NewRequestHandler(&intakeServiceMock{}, reader, &documentLinkerMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/requests/req-9", nil)
	c := userContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "req-9"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-9", reader.lastID)
	assert.Equal(t, service.Viewer{UserID: "user-1"}, reader.lastViewer)
}

func TestRequestHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &requestReaderMock{listResp: []models.TaxRequest{{ID: "a"}, {ID: "b"}}}
	handler := NewRequestHandler(&intakeServiceMock{}, reader, &documentLinkerMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/requests", nil)
	c := userContext(w, req)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", reader.lastUserID)

	var envelope struct {
		Data []models.TaxRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
}

func TestRequestHandlerUploadDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	intake := &intakeServiceMock{attachResp: &models.TaxRequest{ID: "req-1"}}
	handler := NewRequestHandler(intake, &requestReaderMock{}, &documentLinkerMock{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "w2.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/requests/req-1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c := userContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.UploadDocument(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, intake.attachCalled)
	assert.Equal(t, "w2.pdf", intake.lastUpload.Filename)
	assert.Equal(t, int64(8), intake.lastUpload.Size)
	assert.Equal(t, []byte("%PDF-1.4"), intake.uploadedBytes)
}

func TestRequestHandlerUploadWithoutFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	intake := &intakeServiceMock{}
	handler := NewRequestHandler(intake, &requestReaderMock{}, &documentLinkerMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/requests/req-1/documents", nil)
	c := userContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.UploadDocument(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, intake.attachCalled)
}

func TestRequestHandlerDocumentLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	expires := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	linker := &documentLinkerMock{resp: &service.DocumentLink{URL: "/api/v1/documents/download?token=abc", ExpiresAt: expires}}
	handler := NewRequestHandler(&intakeServiceMock{}, &requestReaderMock{}, linker)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/requests/req-1/documents/1/link", nil)
	c := userContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}, {Key: "index", Value: "1"}}

	handler.DocumentLink(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, linker.lastIndex)

	var envelope struct {
		Data dto.DocumentLinkResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "/api/v1/documents/download?token=abc", envelope.Data.URL)
	assert.Equal(t, "2024-03-12T10:00:00Z", envelope.Data.ExpiresAt)
}

func TestRequestHandlerDocumentLinkBadIndex(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&intakeServiceMock{}, &requestReaderMock{}, &documentLinkerMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/requests/req-1/documents/x/link", nil)
	c := userContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}, {Key: "index", Value: "x"}}

	handler.DocumentLink(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
