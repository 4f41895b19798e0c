package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/alma/internal/model"
)

func link(id, url string, relevance float64, created time.Time) *model.DiscoveredLink {
	return &model.DiscoveredLink{
		ID:                 id,
		URL:                url,
		Status:             model.LinkPending,
		PredictedRelevance: relevance,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func TestMemoryStore_InsertLinksIgnoresDuplicateURL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	n, err := s.InsertLinks(ctx, []*model.DiscoveredLink{
		link("a", "https://example.org/a", 0.5, now),
		link("b", "https://example.org/a", 0.5, now),
	})
	if err != nil {
		t.Fatalf("InsertLinks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 inserted, got %d", n)
	}

	n, err = s.InsertLinks(ctx, []*model.DiscoveredLink{link("c", "https://example.org/a", 0.9, now)})
	if err != nil {
		t.Fatalf("second InsertLinks failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted on repeat, got %d", n)
	}
}

func TestMemoryStore_NextBatchOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = s.InsertLinks(ctx, []*model.DiscoveredLink{
		link("low", "https://a.org/1", 0.2, base),
		link("high-late", "https://a.org/2", 0.9, base.Add(2*time.Hour)),
		link("high-early", "https://a.org/3", 0.9, base.Add(time.Hour)),
		link("mid", "https://a.org/4", 0.5, base),
	})

	batch, err := s.NextBatch(ctx, 3, []model.LinkStatus{model.LinkPending})
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	want := []string{"high-early", "high-late", "mid"}
	if len(batch) != len(want) {
		t.Fatalf("expected %d links, got %d", len(want), len(batch))
	}
	for i, id := range want {
		if batch[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, batch[i].ID)
		}
	}

	// NextBatch only peeks
	l, _ := s.GetLink(ctx, "high-early")
	if l.Status != model.LinkPending {
		t.Errorf("NextBatch must not change status, got %s", l.Status)
	}
}

func TestMemoryStore_ClaimBatchIsExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	var links []*model.DiscoveredLink
	for i := 0; i < 50; i++ {
		links = append(links, link(string(rune('A'+i)), "https://example.org/"+string(rune('A'+i)), 0.5, now))
	}
	_, _ = s.InsertLinks(ctx, links)

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := s.ClaimBatch(ctx, 3)
				if err != nil {
					t.Errorf("ClaimBatch failed: %v", err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, l := range batch {
					claimed[l.ID]++
					if l.Status != model.LinkQueued {
						t.Errorf("claimed link %s has status %s", l.ID, l.Status)
					}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 50 {
		t.Errorf("expected 50 distinct claims, got %d", len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("link %s claimed %d times", id, n)
		}
	}
}

func TestMemoryStore_UpdateLinkRespectsFrom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _ = s.InsertLinks(ctx, []*model.DiscoveredLink{link("a", "https://example.org", 0.5, time.Now())})

	err := s.UpdateLink(ctx, "a", []model.LinkStatus{model.LinkScraped}, LinkUpdate{Status: model.LinkApproved})
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	msg := "boom"
	err = s.UpdateLink(ctx, "a", nil, LinkUpdate{Status: model.LinkError, ErrorMessage: &msg})
	if err != nil {
		t.Fatalf("UpdateLink failed: %v", err)
	}
	l, _ := s.GetLink(ctx, "a")
	if l.Status != model.LinkError || l.ErrorMessage != "boom" {
		t.Errorf("unexpected link state: %+v", l)
	}

	if err := s.UpdateLink(ctx, "missing", nil, LinkUpdate{Status: model.LinkError}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_InsertInterventionConflicts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &model.Intervention{
		ID:              "1",
		Name:            "Koori Youth Program",
		IngestURL:       "https://example.org/koori",
		SourceDocuments: model.SourceDocuments{{URL: "https://example.org/koori"}, {URL: "https://example.org/merged"}},
	}
	if err := s.InsertIntervention(ctx, first); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sameIngest := &model.Intervention{ID: "2", Name: "x", IngestURL: "https://example.org/koori"}
	if err := s.InsertIntervention(ctx, sameIngest); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict on ingest url, got %v", err)
	}

	inProvenance := &model.Intervention{ID: "3", Name: "x", IngestURL: "https://example.org/merged"}
	if err := s.InsertIntervention(ctx, inProvenance); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict on provenance url, got %v", err)
	}

	external := &model.Intervention{ID: "4", Name: "Manually entered"}
	if err := s.InsertIntervention(ctx, external); err != nil {
		t.Errorf("records without ingest url never conflict: %v", err)
	}
}

func TestMemoryStore_DeleteAndCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.InsertIntervention(ctx, &model.Intervention{ID: "1", Name: "a", IngestURL: "https://a.org"})
	_ = s.InsertIntervention(ctx, &model.Intervention{ID: "2", Name: "b"})

	if err := s.DeleteIntervention(ctx, "1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.DeleteIntervention(ctx, "1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	n, _ := s.CountInterventions(ctx)
	if n != 1 {
		t.Errorf("expected 1 remaining, got %d", n)
	}
}

func TestMemoryStore_RecentHistoryNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"h1", "h2", "h3"} {
		_ = s.AddHistory(ctx, &model.ScrapeHistory{ID: id})
	}

	got, err := s.RecentHistory(ctx, 2)
	if err != nil {
		t.Fatalf("RecentHistory failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "h3" || got[1].ID != "h2" {
		t.Errorf("unexpected history order: %+v", got)
	}
}

func TestMemoryStore_NegativeOffsetStartsAtZero(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _ = s.InsertLinks(ctx, []*model.DiscoveredLink{link("a", "https://example.org/a", 0.5, time.Now())})
	_ = s.InsertIntervention(ctx, &model.Intervention{ID: "1", Name: "a"})

	links, err := s.ListLinks(ctx, LinkFilter{Offset: -1})
	if err != nil {
		t.Fatalf("ListLinks failed: %v", err)
	}
	if len(links) != 1 || links[0].ID != "a" {
		t.Errorf("expected the first page, got %+v", links)
	}

	ivs, err := s.ListInterventions(ctx, 10, -5)
	if err != nil {
		t.Fatalf("ListInterventions failed: %v", err)
	}
	if len(ivs) != 1 {
		t.Errorf("expected 1 intervention, got %d", len(ivs))
	}
}

func TestClampLimit(t *testing.T) {
	if ClampLimit(0) != DefaultListLimit {
		t.Error("zero limit should use default")
	}
	if ClampLimit(10_000) != MaxListLimit {
		t.Error("large limit should be capped")
	}
	if ClampLimit(7) != 7 {
		t.Error("in-range limit should pass through")
	}
}
