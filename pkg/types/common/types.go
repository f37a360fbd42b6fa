// Package common defines the shared value types used across the analyte
// resolver: identifiers, vendors, pagination, and date ranges.  Domain
// packages depend on these aliases instead of raw strings so that call sites
// stay self-documenting.
package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnalyteID is the stable identifier of a canonical analyte.
// The bootstrap corpus uses the REG153_XXX convention but the resolver treats
// the value as opaque.
type AnalyteID string

// Validate reports whether the AnalyteID is non-empty.
func (id AnalyteID) Validate() error {
	if id == "" {
		return fmt.Errorf("analyte id cannot be empty")
	}
	return nil
}

func (id AnalyteID) String() string { return string(id) }

// Vendor identifies a reporting laboratory ("Caduceon", "SGS", "ALS", ...).
// The empty Vendor means "global" — no vendor conditioning.
type Vendor string

// IsGlobal reports whether the vendor is the global (unscoped) vendor.
func (v Vendor) IsGlobal() bool { return v == "" }

func (v Vendor) String() string { return string(v) }

// SubmissionID identifies one laboratory submission (one report/file).
// Consensus counting is per distinct submission, not per row.
type SubmissionID int64

// ID is a string alias for UUID v4, used for snapshots and decisions.
type ID string

// NewID generates a new random ID.
func NewID() ID { return ID(uuid.NewString()) }

// Validate checks that the ID is a well-formed UUID.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid ID format %q: %w", string(id), err)
	}
	return nil
}

func (id ID) String() string { return string(id) }

// Pagination defines parameters for paginated requests.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total,omitempty"`
}

// Normalize clamps page and page size to sane values.
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 500 {
		p.PageSize = 500
	}
}

// Offset returns the row offset implied by Page/PageSize.
func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// DateRange defines a closed time interval.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range (inclusive).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// LastDays returns a DateRange covering the last n days ending now.
func LastDays(n int) DateRange {
	now := time.Now().UTC()
	return DateRange{From: now.AddDate(0, 0, -n), To: now}
}
