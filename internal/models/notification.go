package models

// Notification templates.
const (
	TemplateRequestReceived = "request_received"
	TemplateStatusUpdate    = "status_update"
)

// Notification is a message queued for delivery to a request owner.
type Notification struct {
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Data      map[string]string `json:"data"`
}
