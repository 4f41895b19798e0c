package model

import (
	"fmt"
	"strings"
	"time"
)

// Page is the fetched and text-extracted content of a link
type Page struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"` // Visible text, whitespace collapsed
	HTML      string    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
	FetchMeta FetchMeta `json:"fetch_meta"`
}

// FetchMeta contains HTTP metadata from fetching a page
type FetchMeta struct {
	StatusCode   int    `json:"status_code"`
	ContentType  string `json:"content_type,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Renderer     string `json:"renderer,omitempty"` // "http" or "chrome"
	FromCache    bool   `json:"from_cache,omitempty"`
}

// Classification is the provisional attribute set assigned to fetched content.
// Heuristic runs fill the first four fields; extraction runs may fill the rest.
type Classification struct {
	Type              string   `json:"type"`
	ConsentLevel      string   `json:"consent_level"`
	CulturalAuthority string   `json:"cultural_authority,omitempty"`
	Geography         []string `json:"geography"`

	Name                  string   `json:"name,omitempty"`
	Description           string   `json:"description,omitempty"`
	TargetCohort          []string `json:"target_cohort,omitempty"`
	OperatingOrganization string   `json:"operating_organization,omitempty"`
	Website               string   `json:"website,omitempty"`
	ContactPhone          string   `json:"contact_phone,omitempty"`
	ContactEmail          string   `json:"contact_email,omitempty"`
	EvidenceLevel         string   `json:"evidence_level,omitempty"`

	Method string `json:"method"` // "heuristic" or "llm:<provider>"
}

// ProcessOutcome is the final state of one pipeline item
type ProcessOutcome string

const (
	OutcomeScraped  ProcessOutcome = "scraped"
	OutcomeConflict ProcessOutcome = "conflict" // Already ingested, treated as success
	OutcomeRejected ProcessOutcome = "rejected"
	OutcomeError    ProcessOutcome = "error"
	OutcomeSkipped  ProcessOutcome = "skipped" // Claim lost to another worker
)

// ProcessResult reports what happened to one link
type ProcessResult struct {
	LinkID         string         `json:"link_id"`
	URL            string         `json:"url"`
	Outcome        ProcessOutcome `json:"outcome"`
	InterventionID string         `json:"intervention_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Duration       time.Duration  `json:"duration"`
	Err            error          `json:"-"`
}

// GetError returns the processing error, if any
func (r *ProcessResult) GetError() error {
	return r.Err
}

// BatchSummary aggregates a batch run
type BatchSummary struct {
	Processed int              `json:"processed"`
	Scraped   int              `json:"scraped"`
	Conflicts int              `json:"conflicts"`
	Rejected  int              `json:"rejected"`
	Errors    int              `json:"errors"`
	Skipped   int              `json:"skipped"`
	Results   []*ProcessResult `json:"results"`
}

// Summarize counts outcomes
func Summarize(results []*ProcessResult) *BatchSummary {
	s := &BatchSummary{Results: results}
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Processed++
		switch r.Outcome {
		case OutcomeScraped:
			s.Scraped++
		case OutcomeConflict:
			s.Conflicts++
		case OutcomeRejected:
			s.Rejected++
		case OutcomeError:
			s.Errors++
		case OutcomeSkipped:
			s.Skipped++
		}
	}
	return s
}

// BulkAction is an admin bulk status change
type BulkAction string

const (
	ActionApprove BulkAction = "approve"
	ActionReject  BulkAction = "reject"
	ActionReset   BulkAction = "reset"
	ActionPending BulkAction = "pending"
)

// ParseBulkAction converts a string to a BulkAction
func ParseBulkAction(s string) (BulkAction, error) {
	switch a := BulkAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject, ActionReset, ActionPending:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q (supported: approve, reject, reset, pending)", ErrInvalidAction, s)
}

// Target returns the status the action moves links to
func (a BulkAction) Target() LinkStatus {
	switch a {
	case ActionApprove:
		return LinkApproved
	case ActionReject:
		return LinkRejected
	default:
		return LinkPending
	}
}

// PastTense is used in bulk summaries
func (a BulkAction) PastTense() string {
	switch a {
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	case ActionReset:
		return "reset"
	default:
		return "moved to pending"
	}
}

// Failure attributes a failure to an id with a reason
type Failure struct {
	ID     string `json:"id"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason"`
}

// BulkResult reports partial success of a bulk operation
type BulkResult struct {
	Action    BulkAction `json:"action"`
	Requested int        `json:"requested"`
	Updated   int        `json:"updated"`
	Failures  []Failure  `json:"failures,omitempty"`
}

// Summary renders e.g. "approved 18 of 20"
func (r *BulkResult) Summary() string {
	return fmt.Sprintf("%s %d of %d", r.Action.PastTense(), r.Updated, r.Requested)
}
