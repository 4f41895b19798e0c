package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return New(s, nil), s
}

func seed(t *testing.T, q *Queue, urls ...string) []string {
	t.Helper()
	if _, err := q.EnqueueURLs(context.Background(), urls); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	links, err := q.NextBatch(context.Background(), len(urls))
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}
	return ids
}

func TestEnqueue_IgnoresDuplicatesAndInvalid(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	res, err := q.Enqueue(ctx, []NewLink{
		{URL: "https://example.org/program"},
		{URL: "  https://example.org/program  "},
		{URL: "ftp://example.org/file"},
		{URL: "not a url"},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("expected 1 inserted, got %d", res.Inserted)
	}
	if len(res.Invalid) != 2 {
		t.Errorf("expected 2 invalid, got %d: %+v", len(res.Invalid), res.Invalid)
	}

	res, err = q.EnqueueURLs(ctx, []string{"https://example.org/program"})
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("re-enqueue must insert nothing, got %d", res.Inserted)
	}
}

func TestEnqueue_RelevanceAndMetadata(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	high := 4.0

	_, err := q.Enqueue(ctx, []NewLink{{
		URL:       "https://example.org/a",
		Type:      "program",
		Relevance: &high,
		Metadata:  map[string]any{"title": "Program A", "discovered_by": "sitemap"},
	}})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	links, _ := s.ListLinks(ctx, store.LinkFilter{})
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	l := links[0]
	if l.PredictedRelevance != 1 {
		t.Errorf("relevance should clamp to 1, got %v", l.PredictedRelevance)
	}
	if l.Metadata.Title != "Program A" {
		t.Errorf("expected title in typed field, got %q", l.Metadata.Title)
	}
	if l.Metadata.Extra["discovered_by"] != "sitemap" {
		t.Errorf("expected extra key kept, got %v", l.Metadata.Extra)
	}
	if l.Status != model.LinkPending {
		t.Errorf("expected pending, got %s", l.Status)
	}
}

func TestClaim(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	ids := seed(t, q, "https://example.org/a")

	l, err := q.Claim(ctx, ids[0])
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if l.Status != model.LinkQueued {
		t.Errorf("expected queued, got %s", l.Status)
	}

	if _, err := q.Claim(ctx, ids[0]); !errors.Is(err, model.ErrNoLinkAvailable) {
		t.Errorf("second claim should fail with ErrNoLinkAvailable, got %v", err)
	}
}

func TestTransition_OnlyAutomaticPaths(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	ids := seed(t, q, "https://example.org/a")

	// pending cannot jump straight to scraped
	if err := q.Transition(ctx, ids[0], model.LinkScraped, store.LinkUpdate{}); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	// approved is admin-only
	if err := q.Transition(ctx, ids[0], model.LinkApproved, store.LinkUpdate{}); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for approved, got %v", err)
	}

	if _, err := q.Claim(ctx, ids[0]); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	msg := "fetch https://example.org/a: timeout"
	if err := q.Transition(ctx, ids[0], model.LinkError, store.LinkUpdate{ErrorMessage: &msg}); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	l, _ := s.GetLink(ctx, ids[0])
	if l.Status != model.LinkError || l.ErrorMessage != msg {
		t.Errorf("unexpected link: %+v", l)
	}
}

func TestBulkTransition_PartialSuccess(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	ids := seed(t, q, "https://example.org/a", "https://example.org/b", "https://example.org/c")

	// Scrape the first link so it can be approved
	if _, err := q.Claim(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := q.Transition(ctx, ids[0], model.LinkScraped, store.LinkUpdate{}); err != nil {
		t.Fatal(err)
	}

	res, err := q.BulkTransition(ctx, []string{ids[0], ids[1], "missing", ids[0]}, model.ActionApprove)
	if err != nil {
		t.Fatalf("BulkTransition failed: %v", err)
	}
	if res.Requested != 3 {
		t.Errorf("duplicate ids should be collapsed, requested=%d", res.Requested)
	}
	if res.Updated != 1 {
		t.Errorf("expected 1 updated, got %d", res.Updated)
	}
	if got := res.Summary(); got != "approved 1 of 3" {
		t.Errorf("unexpected summary %q", got)
	}

	kinds := map[string]string{}
	for _, f := range res.Failures {
		kinds[f.ID] = f.Kind
	}
	if kinds["missing"] != "not_found" {
		t.Errorf("expected not_found for missing id, got %q", kinds["missing"])
	}
	if kinds[ids[1]] != "invalid_transition" {
		t.Errorf("pending link cannot be approved, got %q", kinds[ids[1]])
	}
}

func TestBulkTransition_ResetClearsError(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	ids := seed(t, q, "https://example.org/a")

	_, _ = q.Claim(ctx, ids[0])
	msg := "boom"
	_ = q.Transition(ctx, ids[0], model.LinkError, store.LinkUpdate{ErrorMessage: &msg})

	res, err := q.BulkTransition(ctx, ids, model.ActionReset)
	if err != nil {
		t.Fatalf("BulkTransition failed: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("expected reset to succeed: %+v", res)
	}
	l, _ := s.GetLink(ctx, ids[0])
	if l.Status != model.LinkPending || l.ErrorMessage != "" {
		t.Errorf("expected clean pending link, got %+v", l)
	}
}

func TestBulkTransition_RejectClaimedLink(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	ids := seed(t, q, "https://example.org/a")

	if _, err := q.Claim(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	res, err := q.BulkTransition(ctx, ids, model.ActionReject)
	if err != nil {
		t.Fatalf("BulkTransition failed: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("a queued link should be rejectable: %+v", res)
	}

	// The pipeline finishing afterwards must not overwrite the admin's decision
	if err := q.Transition(ctx, ids[0], model.LinkScraped, store.LinkUpdate{}); err == nil {
		t.Error("expected the late pipeline transition to fail")
	}
	l, _ := s.GetLink(ctx, ids[0])
	if l.Status != model.LinkRejected {
		t.Errorf("expected rejected, got %s", l.Status)
	}
}

func TestBulkTransition_UnknownAction(t *testing.T) {
	q, _ := newTestQueue(t)
	if _, err := q.BulkTransition(context.Background(), []string{"x"}, model.BulkAction("delete")); !errors.Is(err, model.ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}

func TestListAndStatus(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	ids := seed(t, q, "https://example.org/a", "https://example.org/b")

	l, _ := q.Claim(ctx, ids[0])
	_ = q.Transition(ctx, ids[0], model.LinkScraped, store.LinkUpdate{})
	q.RecordAttempt(ctx, l, model.LinkScraped, 1, "")

	list, err := q.List(ctx, store.LinkFilter{Status: model.LinkPending})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 1 || len(list.Links) != 1 {
		t.Errorf("expected one pending link, got total=%d", list.Total)
	}
	if list.StatusCounts[model.LinkScraped] != 1 {
		t.Errorf("expected scraped count 1, got %v", list.StatusCounts)
	}

	report, err := q.Status(ctx, 10)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if report.Total != 2 {
		t.Errorf("expected total 2, got %d", report.Total)
	}
	if report.SuccessRate != 1 {
		t.Errorf("expected success rate 1, got %v", report.SuccessRate)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://Example.ORG/Path#frag", "https://example.org/Path", false},
		{"http://example.org", "http://example.org", false},
		{"mailto:someone@example.org", "", true},
		{"/relative/path", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
