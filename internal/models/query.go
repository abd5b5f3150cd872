package models

// Sort directions accepted by listing queries.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilter captures the admin listing criteria.
type ListFilter struct {
	Status        string
	Search        string
	Page          int
	PageSize      int
	SortDirection string
}

// ListResult is one page of the admin listing.
type ListResult struct {
	Items        []TaxRequest   `json:"items"`
	Total        int            `json:"total"`
	Page         int            `json:"page"`
	PageCount    int            `json:"page_count"`
	StatusCounts map[string]int `json:"status_counts"`
	Statuses     []string       `json:"statuses"`
}

// StatusCount is a grouped count row.
type StatusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// Statistics aggregates the active records.
type Statistics struct {
	TotalRequests      int            `json:"total_requests"`
	StatusCounts       map[string]int `json:"status_counts"`
	CompletedRequests  int            `json:"completed_requests"`
	InProgressRequests int            `json:"in_progress_requests"`
	CancelledRequests  int            `json:"cancelled_requests"`
	RejectedRequests   int            `json:"rejected_requests"`
	TotalRevenue       float64        `json:"total_revenue"`
}
