// Package catalog holds the fixed set of request statuses, their customer
// facing descriptions and the role each status plays in reporting.
package catalog

import (
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/taxfiling-tracker/pkg/errors"
)

// StatusStep is one entry of the catalog.
type StatusStep struct {
	Value              string `mapstructure:"value" json:"value"`
	Description        string `mapstructure:"description" json:"description"`
	CountsAsInProgress bool   `mapstructure:"counts_as_in_progress" json:"counts_as_in_progress"`
}

// Roles designates the catalog values with special meaning.
type Roles struct {
	Initial          string   `mapstructure:"initial"`
	PaymentScheduled string   `mapstructure:"payment_scheduled"`
	Approved         string   `mapstructure:"approved"`
	Cancelled        string   `mapstructure:"cancelled"`
	Rejected         string   `mapstructure:"rejected"`
	Completed        []string `mapstructure:"completed"`
	Revenue          []string `mapstructure:"revenue"`
}

// Catalog is immutable once built.
type Catalog struct {
	steps          []StatusStep
	index          map[string]int
	roles          Roles
	approvedClause string
	completed      map[string]struct{}
	revenue        map[string]struct{}
}

// New validates steps and roles and builds a catalog.
func New(steps []StatusStep, roles Roles, approvedClause string) (*Catalog, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("catalog requires at least one status")
	}
	c := &Catalog{
		steps:          append([]StatusStep(nil), steps...),
		index:          make(map[string]int, len(steps)),
		roles:          roles,
		approvedClause: strings.TrimSpace(approvedClause),
		completed:      make(map[string]struct{}, len(roles.Completed)),
		revenue:        make(map[string]struct{}, len(roles.Revenue)),
	}
	for i, step := range c.steps {
		if strings.TrimSpace(step.Value) == "" {
			return nil, fmt.Errorf("catalog status %d has no value", i)
		}
		if _, dup := c.index[step.Value]; dup {
			return nil, fmt.Errorf("catalog status %q is duplicated", step.Value)
		}
		c.index[step.Value] = i
	}

	single := map[string]string{
		"initial":           roles.Initial,
		"payment_scheduled": roles.PaymentScheduled,
		"approved":          roles.Approved,
		"cancelled":         roles.Cancelled,
		"rejected":          roles.Rejected,
	}
	for role, value := range single {
		if !c.Contains(value) {
			return nil, fmt.Errorf("catalog role %s references unknown status %q", role, value)
		}
	}
	for _, value := range roles.Completed {
		if !c.Contains(value) {
			return nil, fmt.Errorf("catalog completed set references unknown status %q", value)
		}
		c.completed[value] = struct{}{}
	}
	for _, value := range roles.Revenue {
		if !c.Contains(value) {
			return nil, fmt.Errorf("catalog revenue set references unknown status %q", value)
		}
		c.revenue[value] = struct{}{}
	}
	return c, nil
}

// Steps returns the ordered status steps.
func (c *Catalog) Steps() []StatusStep {
	return append([]StatusStep(nil), c.steps...)
}

// Values returns the ordered status values.
func (c *Catalog) Values() []string {
	values := make([]string, len(c.steps))
	for i, step := range c.steps {
		values[i] = step.Value
	}
	return values
}

// Contains reports whether status is a catalog value.
func (c *Catalog) Contains(status string) bool {
	_, ok := c.index[status]
	return ok
}

// Step looks up a status.
func (c *Catalog) Step(status string) (StatusStep, bool) {
	i, ok := c.index[status]
	if !ok {
		return StatusStep{}, false
	}
	return c.steps[i], true
}

func (c *Catalog) Initial() string          { return c.roles.Initial }
func (c *Catalog) PaymentScheduled() string { return c.roles.PaymentScheduled }
func (c *Catalog) Approved() string         { return c.roles.Approved }
func (c *Catalog) Cancelled() string        { return c.roles.Cancelled }
func (c *Catalog) Rejected() string         { return c.roles.Rejected }
func (c *Catalog) ApprovedClause() string   { return c.approvedClause }

// IsCompleted reports membership in the completed set.
func (c *Catalog) IsCompleted(status string) bool {
	_, ok := c.completed[status]
	return ok
}

// IsRevenue reports membership in the revenue-recognized set.
func (c *Catalog) IsRevenue(status string) bool {
	_, ok := c.revenue[status]
	return ok
}

// RevenueStatuses returns the revenue-recognized set in catalog order.
func (c *Catalog) RevenueStatuses() []string {
	out := make([]string, 0, len(c.revenue))
	for _, step := range c.steps {
		if c.IsRevenue(step.Value) {
			out = append(out, step.Value)
		}
	}
	return out
}

// Describe returns the description for status. When status is the payment
// scheduled value and paymentDate is set, the localized date phrase is appended.
func (c *Catalog) Describe(status string, paymentDate *time.Time) (string, error) {
	step, ok := c.Step(status)
	if !ok {
		return "", InvalidStatus(status)
	}
	return c.DescribeAs(status, step.Description, paymentDate), nil
}

// DescribeAs applies the payment date rule of Describe to a caller supplied
// base description. status is assumed to be valid.
func (c *Catalog) DescribeAs(status, base string, paymentDate *time.Time) string {
	if status == c.roles.PaymentScheduled && paymentDate != nil {
		return AppendPaymentPhrase(base, *paymentDate)
	}
	return base
}

// InvalidStatus builds the error returned for values outside the catalog.
func InvalidStatus(status string) error {
	return appErrors.Clone(appErrors.ErrInvalidStatus, fmt.Sprintf("status %q is not a valid status", status))
}
