package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extraction is the record shape the model is asked to return
type Extraction struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	Type                  string   `json:"type"`
	TargetCohort          []string `json:"target_cohort"`
	Geography             []string `json:"geography"`
	ConsentLevel          string   `json:"consent_level"`
	CulturalAuthority     string   `json:"cultural_authority"`
	OperatingOrganization string   `json:"operating_organization"`
	Website               string   `json:"website"`
	ContactPhone          string   `json:"contact_phone"`
	ContactEmail          string   `json:"contact_email"`
	EvidenceLevel         string   `json:"evidence_level"`
}

// ParseExtraction decodes model output, tolerating ```json fences and
// prose around the object
func ParseExtraction(raw string) (*Extraction, error) {
	body := stripFences(raw)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var ex Extraction
	if err := json.Unmarshal([]byte(body), &ex); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	ex.Name = strings.TrimSpace(ex.Name)
	ex.Type = strings.TrimSpace(ex.Type)
	return &ex, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Verify drops values the source text cannot back up. The type must be in
// allowedTypes and contact details must appear verbatim in content. It
// returns the names of the fields it cleared.
func (ex *Extraction) Verify(content string, allowedTypes []string) []string {
	var dropped []string
	lower := strings.ToLower(content)

	if ex.Type != "" && !contains(allowedTypes, ex.Type) {
		ex.Type = ""
		dropped = append(dropped, "type")
	}
	if ex.ContactEmail != "" && !strings.Contains(lower, strings.ToLower(ex.ContactEmail)) {
		ex.ContactEmail = ""
		dropped = append(dropped, "contact_email")
	}
	if phone := digitsOnly(ex.ContactPhone); ex.ContactPhone != "" && (phone == "" || !strings.Contains(digitsOnly(content), phone)) {
		ex.ContactPhone = ""
		dropped = append(dropped, "contact_phone")
	}
	if ex.Website != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(ex.Website), "https://"), "http://")
		host = strings.TrimPrefix(strings.SplitN(host, "/", 2)[0], "www.")
		if host == "" || !strings.Contains(lower, host) {
			ex.Website = ""
			dropped = append(dropped, "website")
		}
	}
	return dropped
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
