package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/store"
	"github.com/ppiankov/alma/internal/util"
)

var longBody = strings.Repeat("The program supports young people leaving custody with mentoring and housing. ", 10)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, "<html><head><title>Youth Mentoring Program</title></head><body><nav>Home | About</nav><p>%s</p></body></html>", longBody)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "<html><body>%s</body></html>", longBody)
	})
	mux.HandleFunc("/construction", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "<html><body><h1>Under construction</h1><p>This page is being rebuilt. Please check back soon for details about our youth programs and services.</p></body></html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Fetch.RespectRobots = false
	cfg.Fetch.Timeout = 5 * time.Second
	cfg.Cache.Enabled = false
	cfg.Pipeline.HostDelay = 0
	cfg.Pipeline.Concurrency = 1
	return cfg
}

func newTestProcessor(t *testing.T, cfg model.Config) (*Processor, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	p, err := New(cfg, s, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, s
}

func enqueue(t *testing.T, p *Processor, urls ...string) {
	t.Helper()
	res, err := p.Queue().EnqueueURLs(context.Background(), urls)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if res.Inserted != len(urls) {
		t.Fatalf("expected %d inserted, got %d", len(urls), res.Inserted)
	}
}

func onlyLink(t *testing.T, s *store.MemoryStore) *model.DiscoveredLink {
	t.Helper()
	links, err := s.ListLinks(context.Background(), store.LinkFilter{})
	if err != nil || len(links) != 1 {
		t.Fatalf("expected one link, got %d (%v)", len(links), err)
	}
	return links[0]
}

func TestRunBatch_ScrapesGoodPage(t *testing.T) {
	srv := testServer(t)
	p, s := newTestProcessor(t, testConfig())
	enqueue(t, p, srv.URL+"/good")

	summary, err := p.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Scraped != 1 {
		t.Fatalf("expected 1 scraped, got %+v", summary)
	}

	link := onlyLink(t, s)
	if link.Status != model.LinkScraped {
		t.Errorf("link status = %s", link.Status)
	}
	iv, err := s.GetIntervention(context.Background(), link.Metadata.InterventionID)
	if err != nil {
		t.Fatalf("intervention missing: %v", err)
	}
	if iv.Name != "Youth Mentoring Program" {
		t.Errorf("name = %q", iv.Name)
	}
	if strings.Contains(iv.Metadata.FullContent, "Home | About") {
		t.Error("navigation text should be stripped")
	}
	if iv.Type != model.TypeSupport || iv.ConsentLevel != model.ConsentPublic {
		t.Errorf("unexpected classification: %s / %s", iv.Type, iv.ConsentLevel)
	}

	history, _ := s.RecentHistory(context.Background(), 10)
	if len(history) != 1 || history[0].Status != model.LinkScraped {
		t.Errorf("expected one scraped history row, got %+v", history)
	}
}

func TestRunBatch_RejectsThinPage(t *testing.T) {
	srv := testServer(t)
	p, s := newTestProcessor(t, testConfig())
	enqueue(t, p, srv.URL+"/construction")

	summary, err := p.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Rejected != 1 {
		t.Fatalf("expected 1 rejected, got %+v", summary)
	}

	link := onlyLink(t, s)
	if link.Status != model.LinkRejected {
		t.Errorf("link status = %s", link.Status)
	}
	if link.Metadata.RejectedReason != model.ReasonContentTooShort {
		t.Errorf("rejected_reason = %q", link.Metadata.RejectedReason)
	}
	if link.Metadata.WordCount == nil || *link.Metadata.WordCount == 0 {
		t.Error("word_count should be recorded on rejection")
	}
	if n, _ := s.CountInterventions(context.Background()); n != 0 {
		t.Errorf("no intervention should be created, have %d", n)
	}
}

func TestRunBatch_FetchFailureIsIsolated(t *testing.T) {
	srv := testServer(t)
	cfg := testConfig()
	cfg.Fetch.HostFailureThreshold = 0
	p, s := newTestProcessor(t, cfg)
	enqueue(t, p, srv.URL+"/missing", srv.URL+"/good")

	summary, err := p.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Errors != 1 || summary.Scraped != 1 {
		t.Fatalf("expected 1 error and 1 scraped, got %+v", summary)
	}

	links, _ := s.ListLinks(context.Background(), store.LinkFilter{Status: model.LinkError})
	if len(links) != 1 {
		t.Fatalf("expected one errored link, got %d", len(links))
	}
	if !strings.Contains(links[0].ErrorMessage, "404") {
		t.Errorf("error_message = %q", links[0].ErrorMessage)
	}
	if links[0].Metadata.FailedAt == nil {
		t.Error("failed_at should be stamped")
	}

	for _, r := range summary.Results {
		if r.Outcome != model.OutcomeError {
			continue
		}
		var fe *model.FetchError
		if !errors.As(r.Err, &fe) {
			t.Errorf("expected FetchError, got %T", r.Err)
		}
	}
}

func TestRunBatch_HostCircuitOpens(t *testing.T) {
	srv := testServer(t)
	cfg := testConfig()
	cfg.Fetch.HostFailureThreshold = 1
	p, s := newTestProcessor(t, cfg)
	enqueue(t, p, srv.URL+"/missing", srv.URL+"/missing?again=1")

	summary, err := p.RunBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Errors != 2 {
		t.Fatalf("expected 2 errors, got %+v", summary)
	}

	links, _ := s.ListLinks(context.Background(), store.LinkFilter{Status: model.LinkError})
	open := 0
	for _, l := range links {
		if l.ErrorMessage == "host circuit open" {
			open++
		}
	}
	if open != 1 {
		t.Errorf("expected one link skipped by the open circuit, got %d", open)
	}
}

func TestProcess_CircuitIsPerBatch(t *testing.T) {
	srv := testServer(t)
	cfg := testConfig()
	cfg.Fetch.HostFailureThreshold = 1
	p, s := newTestProcessor(t, cfg)
	enqueue(t, p, srv.URL+"/missing", srv.URL+"/missing?again=1")

	ctx := context.Background()
	links, err := p.Queue().ClaimBatch(ctx, 2)
	if err != nil || len(links) != 2 {
		t.Fatalf("ClaimBatch: %d links, %v", len(links), err)
	}

	// Two overlapping batches, each with its own circuit
	first := withCircuit(ctx, NewHostCircuit(p.threshold))
	second := withCircuit(ctx, NewHostCircuit(p.threshold))

	p.Process(first, links[0])
	if !circuitFrom(first).Open(util.Hostname(srv.URL)) {
		t.Fatal("first batch circuit should be open after one failure")
	}
	p.Process(second, links[1])

	got, _ := s.GetLink(ctx, links[1].ID)
	if got.ErrorMessage == "host circuit open" || !strings.Contains(got.ErrorMessage, "404") {
		t.Errorf("second batch must fetch the host itself, got %q", got.ErrorMessage)
	}
}

func TestProcess_BlockedHost(t *testing.T) {
	p, s := newTestProcessor(t, testConfig())
	enqueue(t, p, "https://www.facebook.com/some-youth-group")

	summary, err := p.RunBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Rejected != 1 {
		t.Fatalf("expected rejection, got %+v", summary)
	}
	if got := onlyLink(t, s).Metadata.RejectedReason; got != model.ReasonBlockedDomain {
		t.Errorf("rejected_reason = %q", got)
	}
}

func TestProcess_RobotsDisallowed(t *testing.T) {
	srv := testServer(t)
	cfg := testConfig()
	cfg.Fetch.RespectRobots = true
	p, s := newTestProcessor(t, cfg)
	enqueue(t, p, srv.URL+"/private")

	if _, err := p.RunBatch(context.Background(), 1); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	link := onlyLink(t, s)
	if link.Status != model.LinkRejected || link.Metadata.RejectedReason != model.ReasonRobotsDisallowed {
		t.Errorf("unexpected link state: %s %q", link.Status, link.Metadata.RejectedReason)
	}
}

func TestProcessOne_ReprocessIsConflict(t *testing.T) {
	srv := testServer(t)
	p, s := newTestProcessor(t, testConfig())
	enqueue(t, p, srv.URL+"/good")
	ctx := context.Background()
	id := onlyLink(t, s).ID

	first, err := p.ProcessOne(ctx, id)
	if err != nil || first.Scraped != 1 {
		t.Fatalf("first run: %+v %v", first, err)
	}

	if _, err := p.Queue().BulkTransition(ctx, []string{id}, model.ActionReset); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	second, err := p.ProcessOne(ctx, id)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Conflicts != 1 {
		t.Fatalf("expected conflict on reprocess, got %+v", second)
	}
	if n, _ := s.CountInterventions(ctx); n != 1 {
		t.Errorf("reprocessing must not duplicate, have %d records", n)
	}
	if l := onlyLink(t, s); l.Status != model.LinkScraped {
		t.Errorf("link status = %s", l.Status)
	}
}

func TestProcessOne_NotPending(t *testing.T) {
	p, s := newTestProcessor(t, testConfig())
	enqueue(t, p, "https://www.facebook.com/x")
	id := onlyLink(t, s).ID

	if _, err := p.RunBatch(context.Background(), 1); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if _, err := p.ProcessOne(context.Background(), id); !errors.Is(err, model.ErrNoLinkAvailable) {
		t.Errorf("expected ErrNoLinkAvailable, got %v", err)
	}
}

func TestRunBatch_Empty(t *testing.T) {
	p, _ := newTestProcessor(t, testConfig())
	summary, err := p.RunBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("expected nothing processed, got %+v", summary)
	}
}
