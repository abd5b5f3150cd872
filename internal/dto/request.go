package dto

import "github.com/noah-isme/taxfiling-tracker/internal/models"

// CreateTaxRequest is the applicant-submitted intake payload.
type CreateTaxRequest struct {
	SSN           string              `json:"ssn" validate:"required,min=9,max=11"`
	BirthDate     string              `json:"birthDate" validate:"required,datetime=2006-01-02"`
	FullName      string              `json:"fullName" validate:"required,max=200"`
	Email         string              `json:"email" validate:"required,email"`
	Phone         string              `json:"phone" validate:"required,max=30"`
	AccountNumber string              `json:"accountNumber" validate:"required,numeric,min=4,max=17"`
	BankName      string              `json:"bankName" validate:"required"`
	AccountType   string              `json:"accountType" validate:"required"`
	RoutingNumber string              `json:"routingNumber" validate:"required,numeric,len=9"`
	Address       string              `json:"address" validate:"required"`
	RequestType   string              `json:"requestType" validate:"required"`
	PaymentMethod string              `json:"paymentMethod"`
	ServiceLevel  models.ServiceLevel `json:"serviceLevel" validate:"required,oneof=standard premium"`
	Price         float64             `json:"price" validate:"required"`
}

// UpdateStatusRequest moves a request to a new status.
type UpdateStatusRequest struct {
	Status      string  `json:"status"`
	Comment     *string `json:"comment"`
	Description *string `json:"description"`
	PaymentDate *string `json:"paymentDate"`
}

// AddNoteRequest appends a staff note.
type AddNoteRequest struct {
	Note string `json:"note"`
}

// DocumentLinkResponse carries a signed download link.
type DocumentLinkResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
