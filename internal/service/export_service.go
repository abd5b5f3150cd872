package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
	"github.com/noah-isme/taxfiling-tracker/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const maxExportRows = 5000

var exportHeaders = []string{
	"Confirmación", "Nombre", "Email", "Teléfono", "Tipo", "Servicio", "Precio", "Estado", "Documentos", "Creada", "Última actualización",
}

type requestLister interface {
	ListRequests(ctx context.Context, filter models.ListFilter) (*models.ListResult, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportResult is a rendered export.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ExportService renders the filtered admin listing as CSV or PDF.
type ExportService struct {
	lister requestLister
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(lister requestLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{lister: lister, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export walks every page matching filter and renders it in format.
func (s *ExportService) Export(ctx context.Context, filter models.ListFilter, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	dataset, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	base := "solicitudes-" + generatedAt.Format("20060102-150405")
	result := &ExportResult{Rows: len(dataset.Rows)}
	switch format {
	case ExportFormatPDF:
		subtitle := "Generado el " + generatedAt.Format("2006-01-02 15:04") + " UTC"
		if filter.Status != "" {
			subtitle += " | Estado: " + filter.Status
		}
		result.Body, err = s.pdf.Render(dataset, "Solicitudes de declaración", subtitle)
		result.Filename, result.ContentType = base+".pdf", "application/pdf"
	default:
		result.Body, err = s.csv.Render(dataset)
		result.Filename, result.ContentType = base+".csv", "text/csv; charset=utf-8"
	}
	if err != nil {
		s.logger.Error("render export failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return result, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.ListFilter) (export.Dataset, error) {
	dataset := export.Dataset{Headers: exportHeaders}
	filter.PageSize = maxPageSize
	filter.Page = 1
	for {
		page, err := s.lister.ListRequests(ctx, filter)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, item := range page.Items {
			dataset.Rows = append(dataset.Rows, exportRow(item))
		}
		if filter.Page >= page.PageCount || len(dataset.Rows) >= maxExportRows {
			break
		}
		filter.Page++
	}
	if len(dataset.Rows) > maxExportRows {
		dataset.Rows = dataset.Rows[:maxExportRows]
	}
	return dataset, nil
}

func exportRow(req models.TaxRequest) map[string]string {
	return map[string]string{
		"Confirmación":         req.ConfirmationNumber,
		"Nombre":               req.FullName,
		"Email":                req.Email,
		"Teléfono":             req.Phone,
		"Tipo":                 req.RequestType,
		"Servicio":             string(req.ServiceLevel),
		"Precio":               fmt.Sprintf("%.2f", req.Price),
		"Estado":               req.Status,
		"Documentos":           fmt.Sprintf("%d", len(req.W2Files)),
		"Creada":               req.CreatedAt.UTC().Format("2006-01-02"),
		"Última actualización": req.LastStatusUpdate.UTC().Format("2006-01-02 15:04"),
	}
}
