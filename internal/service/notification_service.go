package service

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.uber.org/zap"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/pkg/config"
	"github.com/noah-isme/taxfiling-tracker/pkg/jobs"
	"github.com/noah-isme/taxfiling-tracker/pkg/mailer"
)

// JobTypeNotification is the queue job type carrying a models.Notification.
const JobTypeNotification = "notification"

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService builds owner notifications and hands them to the
// delivery queue. It never reports failures to callers.
type NotificationService struct {
	queue     notificationQueue
	catalog   *catalog.Catalog
	placement string
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(queue notificationQueue, cat *catalog.Catalog, placement string, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, catalog: cat, placement: placement, metrics: metrics, logger: logger}
}

// RequestReceived notifies the owner that a request was created.
func (s *NotificationService) RequestReceived(ctx context.Context, req *models.TaxRequest) {
	s.dispatch(ctx, req, models.Notification{
		Recipient: req.Email,
		Subject:   fmt.Sprintf("Hemos recibido tu solicitud %s", req.ConfirmationNumber),
		Template:  models.TemplateRequestReceived,
		Data: map[string]string{
			"name":                req.FullName,
			"confirmation_number": req.ConfirmationNumber,
			"status":              req.Status,
			"description":         req.StatusDescription,
			"service_level":       string(req.ServiceLevel),
			"price":               fmt.Sprintf("%.2f", req.Price),
		},
	})
}

// StatusChanged notifies the owner about a committed transition.
func (s *NotificationService) StatusChanged(ctx context.Context, req *models.TaxRequest, entry models.StatusHistoryEntry) {
	data := map[string]string{
		"name":                req.FullName,
		"confirmation_number": req.ConfirmationNumber,
		"status":              entry.Status,
		"description":         entry.Description,
	}
	if entry.Comment != nil {
		data["comment"] = *entry.Comment
	}
	if s.catalog != nil && entry.Status == s.catalog.Approved() && s.placement != config.ClausePlacementPersisted {
		data["clause"] = s.catalog.ApprovedClause()
	}
	s.dispatch(ctx, req, models.Notification{
		Recipient: req.Email,
		Subject:   fmt.Sprintf("Actualización de tu solicitud %s", req.ConfirmationNumber),
		Template:  models.TemplateStatusUpdate,
		Data:      data,
	})
}

func (s *NotificationService) dispatch(_ context.Context, req *models.TaxRequest, n models.Notification) {
	if s == nil || s.queue == nil {
		return
	}
	if n.Recipient == "" {
		s.metrics.RecordNotification(NotificationSkipped)
		s.logger.Warn("notification skipped, no recipient", zap.String("request_id", req.ID))
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{Type: JobTypeNotification, Payload: n}); err != nil {
		s.metrics.RecordNotification(NotificationDropped)
		s.logger.Error("notification enqueue failed",
			zap.String("request_id", req.ID),
			zap.String("template", n.Template),
			zap.Error(err),
		)
	}
}

var notificationTemplates = template.Must(template.New("notifications").Option("missingkey=zero").Parse(`
{{define "request_received"}}Hola {{.name}},

Hemos recibido tu solicitud de declaración de impuestos.

Número de confirmación: {{.confirmation_number}}
Servicio: {{.service_level}} ({{.price}} USD)
Estado actual: {{.status}}

{{.description}}

Gracias por confiar en nosotros.
{{end}}
{{define "status_update"}}Hola {{.name}},

El estado de tu solicitud {{.confirmation_number}} ha cambiado a: {{.status}}.

{{.description}}
{{with .comment}}
Comentario: {{.}}
{{end}}{{with .clause}}
{{.}}
{{end}}
Gracias por confiar en nosotros.
{{end}}`))

// RenderNotification renders the plain-text body for n.
func RenderNotification(n models.Notification) (string, error) {
	if notificationTemplates.Lookup(n.Template) == nil {
		return "", fmt.Errorf("unknown notification template %q", n.Template)
	}
	buf := &bytes.Buffer{}
	if err := notificationTemplates.ExecuteTemplate(buf, n.Template, n.Data); err != nil {
		return "", fmt.Errorf("render notification %s: %w", n.Template, err)
	}
	return buf.String(), nil
}

// NotificationWorker delivers queued notifications.
type NotificationWorker struct {
	mailer  mailer.Mailer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(m mailer.Mailer, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{mailer: m, metrics: metrics, logger: logger}
}

// Handle is a jobs.Handler. Returned errors trigger queue retries.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		w.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		w.metrics.RecordNotification(NotificationDropped)
		return nil
	}
	body, err := RenderNotification(n)
	if err != nil {
		w.logger.Error("notification render failed", zap.String("job_id", job.ID), zap.Error(err))
		w.metrics.RecordNotification(NotificationDropped)
		return nil
	}
	if err := w.mailer.Send(ctx, mailer.Message{To: n.Recipient, Subject: n.Subject, Body: body}); err != nil {
		w.metrics.RecordNotification(NotificationFailed)
		return err
	}
	w.metrics.RecordNotification(NotificationSent)
	return nil
}

// OnDrop is a jobs.FailureHook recording notifications that ran out of retries.
func (w *NotificationWorker) OnDrop(job jobs.Job, err error) {
	w.metrics.RecordNotification(NotificationDropped)
	w.logger.Error("notification dropped", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
}
