package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestLinkMetadata_PreservesUnknownKeys(t *testing.T) {
	raw := []byte(`{"title":"Koori Court","word_count":42,"discovered_via":"sitemap","depth":2}`)

	var m LinkMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Title != "Koori Court" {
		t.Errorf("expected title, got %q", m.Title)
	}
	if m.WordCount == nil || *m.WordCount != 42 {
		t.Errorf("expected word_count 42, got %v", m.WordCount)
	}
	if m.Extra["discovered_via"] != "sitemap" {
		t.Errorf("expected extra key discovered_via, got %v", m.Extra)
	}
	if _, ok := m.Extra["title"]; ok {
		t.Error("known keys must not leak into Extra")
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if back["discovered_via"] != "sitemap" || back["depth"] != float64(2) {
		t.Errorf("extra keys lost on marshal: %v", back)
	}
}

func TestLinkMetadata_ExtraCannotShadowKnownField(t *testing.T) {
	m := LinkMetadata{RejectedReason: ReasonContentTooShort, Extra: map[string]any{"rejected_reason": "other"}}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back LinkMetadata
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.RejectedReason != ReasonContentTooShort {
		t.Errorf("expected typed field to win, got %q", back.RejectedReason)
	}
}

func TestLinkMetadata_ScanNull(t *testing.T) {
	var m LinkMetadata
	if err := m.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if err := m.Scan([]byte(`{"scraped_at":"2025-01-02T03:04:05Z"}`)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if m.ScrapedAt == nil || m.ScrapedAt.Year() != 2025 {
		t.Errorf("expected scraped_at, got %v", m.ScrapedAt)
	}
	if err := m.Scan(12); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestStringList_Union(t *testing.T) {
	a := StringList{"NSW", "National"}
	b := StringList{"National", "VIC", "NSW"}

	got := a.Union(b)
	want := []string{"NSW", "National", "VIC"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBulkResult_Summary(t *testing.T) {
	r := &BulkResult{Action: ActionApprove, Requested: 20, Updated: 18}
	if got := r.Summary(); got != "approved 18 of 20" {
		t.Errorf("unexpected summary: %s", got)
	}
}

func TestParseBulkAction(t *testing.T) {
	tests := []struct {
		in     string
		want   LinkStatus
		errors bool
	}{
		{"approve", LinkApproved, false},
		{"REJECT", LinkRejected, false},
		{"reset", LinkPending, false},
		{"pending", LinkPending, false},
		{"delete", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			action, err := ParseBulkAction(tt.in)
			if tt.errors {
				if !errors.Is(err, ErrInvalidAction) {
					t.Errorf("expected ErrInvalidAction, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if action.Target() != tt.want {
				t.Errorf("expected target %s, got %s", tt.want, action.Target())
			}
		})
	}
}

func TestIntervention_CloneIsDeep(t *testing.T) {
	lat := -33.86
	iv := &Intervention{
		Name:            "Youth Off The Streets",
		Geography:       StringList{"NSW"},
		Latitude:        &lat,
		SourceDocuments: SourceDocuments{{URL: "https://example.org"}},
	}

	c := iv.Clone()
	c.Geography[0] = "VIC"
	*c.Latitude = 0
	c.SourceDocuments[0].URL = "changed"

	if iv.Geography[0] != "NSW" || *iv.Latitude != -33.86 || iv.SourceDocuments[0].URL != "https://example.org" {
		t.Error("clone shares state with original")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	cfg.Merge.Lock = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for redis lock without address")
	}

	cfg = DefaultConfig()
	cfg.Pipeline.UseLLM = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for use_llm without provider")
	}
}
