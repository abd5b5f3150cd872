package catalog

// Status values of the built-in catalog.
const (
	StatusPendingPayment   = "Pendiente de pago"
	StatusPaymentReceived  = "Pago recibido"
	StatusInReview         = "En revisión"
	StatusMissingDocuments = "Documentación incompleta"
	StatusWithIRS          = "En proceso con el IRS"
	StatusApproved         = "Aprobada"
	StatusPaymentScheduled = "Pago programado"
	StatusCompleted        = "Completada"
	StatusRejected         = "Rechazada"
	StatusCancelled        = "Cancelada"
)

const defaultApprovedClause = "Nota: El tiempo estimado para procesar una declaración de impuestos electrónica es de 21 días laborables, aunque puede tardar más debido a factores como verificaciones adicionales por parte del IRS, o la presentación de la declaración durante periodos de alta demanda."

var defaultSteps = []StatusStep{
	{Value: StatusPendingPayment, Description: "Tu solicitud ha sido recibida y está pendiente de pago.", CountsAsInProgress: true},
	{Value: StatusPaymentReceived, Description: "Hemos recibido tu pago. Tu solicitud continuará su proceso."},
	{Value: StatusInReview, Description: "Tu solicitud está siendo revisada por nuestro equipo.", CountsAsInProgress: true},
	{Value: StatusMissingDocuments, Description: "Falta documentación para continuar con tu solicitud. Revisa los comentarios.", CountsAsInProgress: true},
	{Value: StatusWithIRS, Description: "Tu declaración fue enviada y está siendo procesada por el IRS.", CountsAsInProgress: true},
	{Value: StatusApproved, Description: "Tu declaración ha sido aprobada por el IRS.", CountsAsInProgress: true},
	{Value: StatusPaymentScheduled, Description: "El IRS ha programado el pago de tu reembolso", CountsAsInProgress: true},
	{Value: StatusCompleted, Description: "Tu solicitud ha sido completada exitosamente."},
	{Value: StatusRejected, Description: "Tu solicitud ha sido rechazada. Revisa los comentarios para más información."},
	{Value: StatusCancelled, Description: "Tu solicitud ha sido cancelada."},
}

var defaultRoles = Roles{
	Initial:          StatusInReview,
	PaymentScheduled: StatusPaymentScheduled,
	Approved:         StatusApproved,
	Cancelled:        StatusCancelled,
	Rejected:         StatusRejected,
	Completed:        []string{StatusCompleted, StatusPaymentReceived},
	Revenue:          []string{StatusCompleted, StatusPaymentReceived, StatusPaymentScheduled},
}

// Default returns the built-in Spanish catalog.
func Default() *Catalog {
	c, err := New(defaultSteps, defaultRoles, defaultApprovedClause)
	if err != nil {
		panic(err)
	}
	return c
}
