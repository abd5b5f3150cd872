package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taxfiling-tracker/internal/catalog"
	"github.com/noah-isme/taxfiling-tracker/internal/models"
	"github.com/noah-isme/taxfiling-tracker/pkg/config"
	"github.com/noah-isme/taxfiling-tracker/pkg/jobs"
	"github.com/noah-isme/taxfiling-tracker/pkg/mailer"
)

type captureQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *captureQueue) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type captureMailer struct {
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func notificationRecord() *models.TaxRequest {
	return &models.TaxRequest{
		ID:                 "req-1",
		FullName:           "Ana Pérez",
		Email:              "ana@example.com",
		ConfirmationNumber: "ABCDEFGHJK",
		Status:             catalog.StatusInReview,
		StatusDescription:  "Tu solicitud está siendo revisada por nuestro equipo.",
		ServiceLevel:       models.ServiceLevelPremium,
		Price:              150,
	}
}

func TestNotificationServiceRequestReceived(t *testing.T) {
	queue := &captureQueue{}
	svc := NewNotificationService(queue, catalog.Default(), config.ClausePlacementNotification, nil, nil)

	svc.RequestReceived(context.Background(), notificationRecord())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeNotification, queue.jobs[0].Type)

	n, ok := queue.jobs[0].Payload.(models.Notification)
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", n.Recipient)
	assert.Equal(t, models.TemplateRequestReceived, n.Template)
	assert.Contains(t, n.Subject, "ABCDEFGHJK")

	body, err := RenderNotification(n)
	require.NoError(t, err)
	assert.Contains(t, body, "Hola Ana Pérez")
	assert.Contains(t, body, "premium (150.00 USD)")
}

func TestNotificationServiceApprovedClause(t *testing.T) {
	cat := catalog.Default()
	entry := models.StatusHistoryEntry{Status: catalog.StatusApproved, Description: "Aprobada por el IRS."}

	queue := &captureQueue{}
	NewNotificationService(queue, cat, config.ClausePlacementNotification, nil, nil).StatusChanged(context.Background(), notificationRecord(), entry)
	require.Len(t, queue.jobs, 1)
	n := queue.jobs[0].Payload.(models.Notification)
	assert.Equal(t, cat.ApprovedClause(), n.Data["clause"])
	body, err := RenderNotification(n)
	require.NoError(t, err)
	assert.Contains(t, body, cat.ApprovedClause())

	persisted := &captureQueue{}
	NewNotificationService(persisted, cat, config.ClausePlacementPersisted, nil, nil).StatusChanged(context.Background(), notificationRecord(), entry)
	require.Len(t, persisted.jobs, 1)
	_, hasClause := persisted.jobs[0].Payload.(models.Notification).Data["clause"]
	assert.False(t, hasClause)
}

func TestNotificationServiceStatusChangedRendersComment(t *testing.T) {
	queue := &captureQueue{}
	svc := NewNotificationService(queue, catalog.Default(), "", nil, nil)
	comment := "Sube tu W-2"
	svc.StatusChanged(context.Background(), notificationRecord(), models.StatusHistoryEntry{
		Status:      catalog.StatusMissingDocuments,
		Description: "Falta documentación.",
		Comment:     &comment,
	})

	body, err := RenderNotification(queue.jobs[0].Payload.(models.Notification))
	require.NoError(t, err)
	assert.Contains(t, body, "Documentación incompleta")
	assert.Contains(t, body, "Comentario: Sube tu W-2")
	assert.NotContains(t, body, "<no value>")
}

func TestNotificationServiceSwallowsFailures(t *testing.T) {
	queue := &captureQueue{err: jobs.ErrQueueFull}
	svc := NewNotificationService(queue, catalog.Default(), "", NewMetricsService(), nil)
	svc.RequestReceived(context.Background(), notificationRecord())

	empty := &captureQueue{}
	record := notificationRecord()
	record.Email = ""
	NewNotificationService(empty, catalog.Default(), "", nil, nil).RequestReceived(context.Background(), record)
	assert.Empty(t, empty.jobs)

	var nilSvc *NotificationService
	nilSvc.RequestReceived(context.Background(), record)
}

func TestRenderNotificationUnknownTemplate(t *testing.T) {
	_, err := RenderNotification(models.Notification{Template: "nope"})
	assert.Error(t, err)
}

func TestNotificationWorkerHandle(t *testing.T) {
	m := &captureMailer{}
	worker := NewNotificationWorker(m, NewMetricsService(), nil)

	n := models.Notification{Recipient: "ana@example.com", Subject: "Hola", Template: models.TemplateStatusUpdate, Data: map[string]string{"name": "Ana"}}
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "1", Payload: n}))
	require.Len(t, m.sent, 1)
	assert.Equal(t, "ana@example.com", m.sent[0].To)
	assert.Contains(t, m.sent[0].Body, "Hola Ana")

	assert.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "2", Payload: "junk"}))

	m.err = errors.New("smtp down")
	assert.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "3", Payload: n}))
	worker.OnDrop(jobs.Job{ID: "3", Attempt: 3}, m.err)
}
