package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ServiceLevel is the purchased filing tier.
type ServiceLevel string

const (
	ServiceLevelStandard ServiceLevel = "standard"
	ServiceLevelPremium  ServiceLevel = "premium"
)

// Price returns the fixed price for the level, or 0 when unknown.
func (l ServiceLevel) Price() float64 {
	switch l {
	case ServiceLevelStandard:
		return 60
	case ServiceLevelPremium:
		return 150
	}
	return 0
}

// MaxDocuments is the number of supporting documents a request may carry.
const MaxDocuments = 3

// TaxRequest is a tax-filing service request and its lifecycle state.
type TaxRequest struct {
	ID                 string         `db:"id" json:"id"`
	UserID             string         `db:"user_id" json:"user_id"`
	SSN                string         `db:"ssn" json:"ssn"`
	BirthDate          time.Time      `db:"birth_date" json:"birth_date"`
	FullName           string         `db:"full_name" json:"full_name"`
	Email              string         `db:"email" json:"email"`
	Phone              string         `db:"phone" json:"phone"`
	AccountNumber      string         `db:"account_number" json:"account_number"`
	BankName           string         `db:"bank_name" json:"bank_name"`
	AccountType        string         `db:"account_type" json:"account_type"`
	RoutingNumber      string         `db:"routing_number" json:"routing_number"`
	Address            string         `db:"address" json:"address"`
	RequestType        string         `db:"request_type" json:"request_type"`
	PaymentMethod      string         `db:"payment_method" json:"payment_method,omitempty"`
	ServiceLevel       ServiceLevel   `db:"service_level" json:"service_level"`
	Price              float64        `db:"price" json:"price"`
	W2Files            pq.StringArray `db:"w2_files" json:"w2_files"`
	Status             string         `db:"status" json:"status"`
	StatusDescription  string         `db:"status_description" json:"status_description"`
	LastStatusUpdate   time.Time      `db:"last_status_update" json:"last_status_update"`
	PaymentDate        *time.Time     `db:"payment_date" json:"payment_date,omitempty"`
	StatusHistory      StatusHistory  `db:"status_history" json:"status_history"`
	AdminNotes         AdminNotes     `db:"admin_notes" json:"admin_notes"`
	IsDeleted          bool           `db:"is_deleted" json:"is_deleted"`
	ConfirmationNumber string         `db:"confirmation_number" json:"confirmation_number"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Masked returns a copy with SSN and bank numbers reduced to their last four characters.
func (r TaxRequest) Masked() TaxRequest {
	r.SSN = maskTail(r.SSN)
	r.AccountNumber = maskTail(r.AccountNumber)
	r.RoutingNumber = maskTail(r.RoutingNumber)
	return r
}

func maskTail(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return value
	}
	masked := make([]rune, len(runes))
	for i := range runes {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// StatusHistoryEntry records one status transition.
type StatusHistoryEntry struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Comment     *string   `json:"comment,omitempty"`
	Date        time.Time `json:"date"`
	UpdatedBy   string    `json:"updated_by"`
}

// AdminNote is a free-text staff note.
type AdminNote struct {
	Note      string    `json:"note"`
	Date      time.Time `json:"date"`
	CreatedBy string    `json:"created_by"`
}

// StatusHistory is stored as a JSONB array.
type StatusHistory []StatusHistoryEntry

// Value implements driver.Valuer.
func (h StatusHistory) Value() (driver.Value, error) {
	return marshalArray(h, len(h) == 0)
}

// Scan implements sql.Scanner.
func (h *StatusHistory) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// Last returns the most recent entry.
func (h StatusHistory) Last() (StatusHistoryEntry, bool) {
	if len(h) == 0 {
		return StatusHistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// AdminNotes is stored as a JSONB array.
type AdminNotes []AdminNote

// Value implements driver.Valuer.
func (n AdminNotes) Value() (driver.Value, error) {
	return marshalArray(n, len(n) == 0)
}

// Scan implements sql.Scanner.
func (n *AdminNotes) Scan(src interface{}) error {
	return scanJSON(src, n)
}

func marshalArray(v interface{}, empty bool) (driver.Value, error) {
	if empty {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func scanJSON(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		data = []byte("[]")
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON source %T", src)
	}
	return json.Unmarshal(data, dest)
}
