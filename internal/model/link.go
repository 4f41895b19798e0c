package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LinkStatus is the lifecycle state of a discovered link
type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"  // Waiting to be claimed
	LinkQueued   LinkStatus = "queued"   // Claimed by a worker
	LinkScraped  LinkStatus = "scraped"  // Fetched and written to the knowledge base
	LinkRejected LinkStatus = "rejected" // Failed the quality gate or was rejected by an admin
	LinkError    LinkStatus = "error"    // Fetch or write failure, terminal until reset
	LinkApproved LinkStatus = "approved" // Admin curation after scraping
)

// AllLinkStatuses lists every status in display order
var AllLinkStatuses = []LinkStatus{LinkPending, LinkQueued, LinkScraped, LinkRejected, LinkError, LinkApproved}

// Valid reports whether s is a known status
func (s LinkStatus) Valid() bool {
	for _, known := range AllLinkStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseLinkStatus converts a string to a LinkStatus
func ParseLinkStatus(s string) (LinkStatus, error) {
	status := LinkStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown link status: %q", s)
	}
	return status, nil
}

// DiscoveredLink is a candidate URL tracked through the scrape lifecycle
type DiscoveredLink struct {
	ID                 string       `db:"id" json:"id"`
	URL                string       `db:"url" json:"url"`
	SourceURL          string       `db:"source_url" json:"source_url,omitempty"`
	Status             LinkStatus   `db:"status" json:"status"`
	PredictedType      string       `db:"predicted_type" json:"predicted_type,omitempty"`
	PredictedRelevance float64      `db:"predicted_relevance" json:"predicted_relevance"`
	Metadata           LinkMetadata `db:"metadata" json:"metadata"`
	ErrorMessage       string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the link
func (l *DiscoveredLink) Clone() *DiscoveredLink {
	if l == nil {
		return nil
	}
	c := *l
	c.Metadata = l.Metadata.Clone()
	return &c
}

// LinkMetadata holds the fields the pipeline reads and writes on a link.
// Keys it does not know about survive a round trip through Extra.
type LinkMetadata struct {
	Title          string     `json:"title,omitempty"`
	ExtractedTitle string     `json:"extracted_title,omitempty"`
	WordCount      *int       `json:"word_count,omitempty"`
	RejectedReason string     `json:"rejected_reason,omitempty"`
	ScrapedAt      *time.Time `json:"scraped_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	InterventionID string     `json:"intervention_id,omitempty"`
	DuplicateOf    string     `json:"duplicate_of,omitempty"`

	Extra map[string]any `json:"-"`
}

var linkMetadataKeys = []string{
	"title", "extracted_title", "word_count", "rejected_reason",
	"scraped_at", "failed_at", "intervention_id", "duplicate_of",
}

// Clone returns a deep copy of the metadata
func (m LinkMetadata) Clone() LinkMetadata {
	c := m
	if m.WordCount != nil {
		wc := *m.WordCount
		c.WordCount = &wc
	}
	if m.ScrapedAt != nil {
		t := *m.ScrapedAt
		c.ScrapedAt = &t
	}
	if m.FailedAt != nil {
		t := *m.FailedAt
		c.FailedAt = &t
	}
	c.Extra = cloneExtra(m.Extra)
	return c
}

// SetWordCount stores a word count
func (m *LinkMetadata) SetWordCount(n int) {
	m.WordCount = &n
}

type linkMetadataAlias LinkMetadata

// MarshalJSON flattens Extra alongside the known fields
func (m LinkMetadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(linkMetadataAlias(m), m.Extra, linkMetadataKeys)
}

// UnmarshalJSON splits known fields from unknown keys
func (m *LinkMetadata) UnmarshalJSON(data []byte) error {
	var alias linkMetadataAlias
	extra, err := unmarshalWithExtra(data, &alias, linkMetadataKeys)
	if err != nil {
		return err
	}
	*m = LinkMetadata(alias)
	m.Extra = extra
	return nil
}

// Value implements driver.Valuer for JSONB columns
func (m LinkMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns
func (m *LinkMetadata) Scan(value any) error {
	return scanJSON(value, m)
}

// ScrapeHistory records one processing attempt for a link
type ScrapeHistory struct {
	ID             string     `db:"id" json:"id"`
	LinkID         string     `db:"link_id" json:"link_id"`
	URL            string     `db:"url" json:"url"`
	Status         LinkStatus `db:"status" json:"status"`
	ItemsFound     int        `db:"items_found" json:"items_found"`
	RelevanceScore float64    `db:"relevance_score" json:"relevance_score"`
	Error          string     `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
