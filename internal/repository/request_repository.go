package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/taxfiling-tracker/internal/models"
)

const requestColumns = `id, user_id, ssn, birth_date, full_name, email, phone, account_number, bank_name,
       account_type, routing_number, address, request_type, payment_method, service_level, price, w2_files,
       status, status_description, last_status_update, payment_date, status_history, admin_notes, is_deleted,
       confirmation_number, created_at, updated_at`

// ConfirmationNumberConstraint is the unique index guarding confirmation numbers.
const ConfirmationNumberConstraint = "tax_requests_confirmation_number_key"

const uniqueViolation = "23505"

// RequestRepository persists tax requests in PostgreSQL. Every mutation is a
// single statement so concurrent writers never lose history or notes.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// IsUniqueViolation reports whether err is a unique violation on constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, req *models.TaxRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt
	if req.W2Files == nil {
		req.W2Files = pq.StringArray{}
	}
	const query = `INSERT INTO tax_requests
	(id, user_id, ssn, birth_date, full_name, email, phone, account_number, bank_name, account_type, routing_number,
	 address, request_type, payment_method, service_level, price, w2_files, status, status_description,
	 last_status_update, payment_date, status_history, admin_notes, is_deleted, confirmation_number, created_at, updated_at)
	VALUES (:id, :user_id, :ssn, :birth_date, :full_name, :email, :phone, :account_number, :bank_name, :account_type,
	 :routing_number, :address, :request_type, :payment_method, :service_level, :price, :w2_files, :status,
	 :status_description, :last_status_update, :payment_date, :status_history, :admin_notes, :is_deleted,
	 :confirmation_number, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create tax request: %w", err)
	}
	return nil
}

// GetByID fetches a request regardless of its deletion flag.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.TaxRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM tax_requests WHERE id = $1`
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetActive fetches a request that is not soft deleted.
func (r *RequestRepository) GetActive(ctx context.Context, id string) (*models.TaxRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM tax_requests WHERE id = $1 AND is_deleted = FALSE`
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// TransitionParams groups the columns written by a status transition.
type TransitionParams struct {
	ID          string
	Status      string
	Description string
	PaymentDate *time.Time
	Entry       models.StatusHistoryEntry
}

// ApplyTransition sets the status and appends the history entry in one
// statement. Returns sql.ErrNoRows when no active request matches.
func (r *RequestRepository) ApplyTransition(ctx context.Context, params TransitionParams) (*models.TaxRequest, error) {
	entry, err := json.Marshal(params.Entry)
	if err != nil {
		return nil, fmt.Errorf("encode history entry: %w", err)
	}
	query := `UPDATE tax_requests SET
	    status = $2,
	    status_description = $3,
	    last_status_update = $4,
	    payment_date = COALESCE($5::timestamptz, payment_date),
	    status_history = status_history || jsonb_build_array($6::jsonb),
	    updated_at = $4
	WHERE id = $1 AND is_deleted = FALSE
	RETURNING ` + requestColumns
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query,
		params.ID, params.Status, params.Description, params.Entry.Date, params.PaymentDate, string(entry),
	); err != nil {
		return nil, err
	}
	return &req, nil
}

// AppendNote appends a staff note to an active request.
func (r *RequestRepository) AppendNote(ctx context.Context, id string, note models.AdminNote) (*models.TaxRequest, error) {
	payload, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encode admin note: %w", err)
	}
	query := `UPDATE tax_requests SET
	    admin_notes = admin_notes || jsonb_build_array($2::jsonb),
	    updated_at = $3
	WHERE id = $1 AND is_deleted = FALSE
	RETURNING ` + requestColumns
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query, id, string(payload), note.Date); err != nil {
		return nil, err
	}
	return &req, nil
}

// SetDeleted flags a request as soft deleted. Already deleted rows still match.
func (r *RequestRepository) SetDeleted(ctx context.Context, id string) (*models.TaxRequest, error) {
	query := `UPDATE tax_requests SET is_deleted = TRUE, updated_at = NOW()
	WHERE id = $1
	RETURNING ` + requestColumns
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// Restore clears the deletion flag. Returns sql.ErrNoRows unless the row is deleted.
func (r *RequestRepository) Restore(ctx context.Context, id string) (*models.TaxRequest, error) {
	query := `UPDATE tax_requests SET is_deleted = FALSE, updated_at = NOW()
	WHERE id = $1 AND is_deleted = TRUE
	RETURNING ` + requestColumns
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// AppendDocument adds a document locator while fewer than max are attached.
// Returns sql.ErrNoRows when the request is missing, deleted or already full.
func (r *RequestRepository) AppendDocument(ctx context.Context, id, location string, max int) (*models.TaxRequest, error) {
	query := `UPDATE tax_requests SET
	    w2_files = array_append(w2_files, $2),
	    updated_at = NOW()
	WHERE id = $1 AND is_deleted = FALSE AND COALESCE(array_length(w2_files, 1), 0) < $3
	RETURNING ` + requestColumns
	var req models.TaxRequest
	if err := r.db.GetContext(ctx, &req, query, id, location, max); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListCriteria is the normalized form of a listing filter.
type ListCriteria struct {
	Status   string
	Search   string
	Limit    int
	Offset   int
	SortDesc bool
}

// List returns one page of active requests and the total matching count.
func (r *RequestRepository) List(ctx context.Context, criteria ListCriteria) ([]models.TaxRequest, int, error) {
	conditions := []string{"is_deleted = FALSE"}
	args := make([]interface{}, 0, 4)
	if criteria.Status != "" {
		args = append(args, criteria.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(criteria.Search); search != "" {
		args = append(args, "%"+EscapeLike(search)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(confirmation_number ILIKE $%d OR email ILIKE $%d OR full_name ILIKE $%d)", idx, idx, idx))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tax_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count tax requests: %w", err)
	}

	direction := "ASC"
	if criteria.SortDesc {
		direction = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM tax_requests%s ORDER BY created_at %s, id %s LIMIT %d OFFSET %d",
		requestColumns, where, direction, direction, criteria.Limit, criteria.Offset)
	requests := make([]models.TaxRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tax requests: %w", err)
	}
	return requests, total, nil
}

// ListByUser returns the active requests owned by userID, newest first.
func (r *RequestRepository) ListByUser(ctx context.Context, userID string) ([]models.TaxRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM tax_requests
	WHERE user_id = $1 AND is_deleted = FALSE ORDER BY created_at DESC`
	requests := make([]models.TaxRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, fmt.Errorf("list user tax requests: %w", err)
	}
	return requests, nil
}

// CountByStatus groups active requests by status.
func (r *RequestRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM tax_requests WHERE is_deleted = FALSE GROUP BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count tax requests by status: %w", err)
	}
	return counts, nil
}

// SumRevenue totals the price of active requests in the given statuses.
func (r *RequestRepository) SumRevenue(ctx context.Context, statuses []string) (float64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	const query = `SELECT COALESCE(SUM(price), 0) FROM tax_requests WHERE is_deleted = FALSE AND status = ANY($1)`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, pq.Array(statuses)); err != nil {
		return 0, fmt.Errorf("sum tax request revenue: %w", err)
	}
	return total, nil
}

// RepairMissingDescriptions fills blank history descriptions with placeholder
// and returns the number of requests touched.
func (r *RequestRepository) RepairMissingDescriptions(ctx context.Context, placeholder string) (int64, error) {
	const query = `UPDATE tax_requests SET status_history = (
	    SELECT jsonb_agg(
	        CASE WHEN COALESCE(e->>'description', '') = ''
	             THEN jsonb_set(e, '{description}', to_jsonb($1::text))
	             ELSE e END
	        ORDER BY ord)
	    FROM jsonb_array_elements(status_history) WITH ORDINALITY AS h(e, ord))
	WHERE EXISTS (
	    SELECT 1 FROM jsonb_array_elements(status_history) AS x(e)
	    WHERE COALESCE(x.e->>'description', '') = '')`
	res, err := r.db.ExecContext(ctx, query, placeholder)
	if err != nil {
		return 0, fmt.Errorf("repair history descriptions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repair history descriptions: %w", err)
	}
	return affected, nil
}

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// IsNoRows reports whether err means no row matched.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
