package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Intervention types used by the classifier and the knowledge base
const (
	TypePrevention         = "Prevention"
	TypeEarlyIntervention  = "Early Intervention"
	TypeDiversion          = "Diversion"
	TypeTherapeutic        = "Therapeutic"
	TypeWraparoundSupport  = "Wraparound Support"
	TypeFamilyStrengthen   = "Family Strengthening"
	TypeCulturalConnection = "Cultural Connection"
	TypeEducationEmploy    = "Education/Employment"
	TypeJusticeReinvest    = "Justice Reinvestment"
	TypeCommunityLed       = "Community-Led"
	TypeSupport            = "Support"
	TypeUnknown            = "Unknown"
)

// InterventionTypes lists every accepted type
var InterventionTypes = []string{
	TypePrevention, TypeEarlyIntervention, TypeDiversion, TypeTherapeutic,
	TypeWraparoundSupport, TypeFamilyStrengthen, TypeCulturalConnection,
	TypeEducationEmploy, TypeJusticeReinvest, TypeCommunityLed, TypeSupport,
}

// Consent levels describe how a source may be reused
const (
	ConsentPublic              = "Public Knowledge Commons"
	ConsentCommunityControlled = "Community Controlled"
	ConsentStrictlyPrivate     = "Strictly Private"
)

// ConsentLevels lists every accepted consent level
var ConsentLevels = []string{ConsentPublic, ConsentCommunityControlled, ConsentStrictlyPrivate}

// EvidenceLevels lists the accepted evidence levels
var EvidenceLevels = []string{
	"Promising (community-endorsed, emerging evidence)",
	"Effective (strong evaluation, positive outcomes)",
	"Proven (RCT/quasi-experimental, replicated)",
	"Indigenous-led (culturally grounded, community authority)",
	"Untested (theory/pilot stage)",
}

// GeographyNational is the default region tag
const GeographyNational = "National"

// Intervention is a canonical knowledge-base record
type Intervention struct {
	ID                    string               `db:"id" json:"id"`
	Name                  string               `db:"name" json:"name"`
	Description           string               `db:"description" json:"description,omitempty"`
	Type                  string               `db:"type" json:"type,omitempty"`
	Geography             StringList           `db:"geography" json:"geography,omitempty"`
	TargetCohort          StringList           `db:"target_cohort" json:"target_cohort,omitempty"`
	ConsentLevel          string               `db:"consent_level" json:"consent_level,omitempty"`
	CulturalAuthority     string               `db:"cultural_authority" json:"cultural_authority,omitempty"`
	Latitude              *float64             `db:"latitude" json:"latitude,omitempty"`
	Longitude             *float64             `db:"longitude" json:"longitude,omitempty"`
	SourceURL             string               `db:"source_url" json:"source_url,omitempty"`
	Website               string               `db:"website" json:"website,omitempty"`
	OperatingOrganization string               `db:"operating_organization" json:"operating_organization,omitempty"`
	ContactPhone          string               `db:"contact_phone" json:"contact_phone,omitempty"`
	ContactEmail          string               `db:"contact_email" json:"contact_email,omitempty"`
	EvidenceLevel         string               `db:"evidence_level" json:"evidence_level,omitempty"`
	IngestURL             string               `db:"ingest_url" json:"ingest_url,omitempty"` // URL of the link that created the record
	SourceDocuments       SourceDocuments      `db:"source_documents" json:"source_documents"`
	Metadata              InterventionMetadata `db:"metadata" json:"metadata"`
	CreatedAt             time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time            `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the record
func (iv *Intervention) Clone() *Intervention {
	if iv == nil {
		return nil
	}
	c := *iv
	c.Geography = append(StringList(nil), iv.Geography...)
	c.TargetCohort = append(StringList(nil), iv.TargetCohort...)
	if iv.Latitude != nil {
		lat := *iv.Latitude
		c.Latitude = &lat
	}
	if iv.Longitude != nil {
		lng := *iv.Longitude
		c.Longitude = &lng
	}
	c.SourceDocuments = append(SourceDocuments(nil), iv.SourceDocuments...)
	c.Metadata = iv.Metadata.Clone()
	return &c
}

// HasProvenance reports whether any source document points at url
func (iv *Intervention) HasProvenance(url string) bool {
	for _, doc := range iv.SourceDocuments {
		if doc.URL == url {
			return true
		}
	}
	return false
}

// SourceDocument is one provenance entry
type SourceDocument struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// SourceDocuments is an ordered, append-only provenance list
type SourceDocuments []SourceDocument

// Value implements driver.Valuer
func (d SourceDocuments) Value() (driver.Value, error) {
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]SourceDocument(d))
}

// Scan implements sql.Scanner
func (d *SourceDocuments) Scan(value any) error {
	if value == nil {
		*d = nil
		return nil
	}
	var out []SourceDocument
	if err := scanJSON(value, &out); err != nil {
		return err
	}
	*d = out
	return nil
}

// InterventionMetadata holds extraction and merge artifacts for a record
type InterventionMetadata struct {
	ScrapedAt        *time.Time `json:"scraped_at,omitempty"`
	WordCount        *int       `json:"word_count,omitempty"`
	FullContent      string     `json:"full_content,omitempty"`
	SourceLinkID     string     `json:"source_link_id,omitempty"`
	ExtractionMethod string     `json:"extraction_method,omitempty"`
	MergedFrom       []string   `json:"merged_from,omitempty"`
	MergedAt         *time.Time `json:"merged_at,omitempty"`
	MergeReason      string     `json:"merge_reason,omitempty"`

	Extra map[string]any `json:"-"`
}

var interventionMetadataKeys = []string{
	"scraped_at", "word_count", "full_content", "source_link_id",
	"extraction_method", "merged_from", "merged_at", "merge_reason",
}

// Clone returns a deep copy of the metadata
func (m InterventionMetadata) Clone() InterventionMetadata {
	c := m
	if m.ScrapedAt != nil {
		t := *m.ScrapedAt
		c.ScrapedAt = &t
	}
	if m.WordCount != nil {
		wc := *m.WordCount
		c.WordCount = &wc
	}
	if m.MergedAt != nil {
		t := *m.MergedAt
		c.MergedAt = &t
	}
	c.MergedFrom = append([]string(nil), m.MergedFrom...)
	c.Extra = cloneExtra(m.Extra)
	return c
}

type interventionMetadataAlias InterventionMetadata

// MarshalJSON flattens Extra alongside the known fields
func (m InterventionMetadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(interventionMetadataAlias(m), m.Extra, interventionMetadataKeys)
}

// UnmarshalJSON splits known fields from unknown keys
func (m *InterventionMetadata) UnmarshalJSON(data []byte) error {
	var alias interventionMetadataAlias
	extra, err := unmarshalWithExtra(data, &alias, interventionMetadataKeys)
	if err != nil {
		return err
	}
	*m = InterventionMetadata(alias)
	m.Extra = extra
	return nil
}

// Value implements driver.Valuer
func (m InterventionMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *InterventionMetadata) Scan(value any) error {
	return scanJSON(value, m)
}

// ArchivedIntervention is a merged-away record kept for audit
type ArchivedIntervention struct {
	ID         string        `db:"id" json:"id"`
	MergedInto string        `db:"merged_into" json:"merged_into"`
	Record     *Intervention `db:"-" json:"record"`
	ArchivedAt time.Time     `db:"archived_at" json:"archived_at"`
}
