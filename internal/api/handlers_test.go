package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/alma/internal/merge"
	"github.com/ppiankov/alma/internal/metrics"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/queue"
	"github.com/ppiankov/alma/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	batchSize int
	linkID    string
	err       error
}

func (f *fakeProcessor) RunBatch(_ context.Context, size int) (*model.BatchSummary, error) {
	f.batchSize = size
	if f.err != nil {
		return nil, f.err
	}
	return &model.BatchSummary{Processed: 2, Scraped: 1, Rejected: 1}, nil
}

func (f *fakeProcessor) ProcessOne(_ context.Context, id string) (*model.BatchSummary, error) {
	f.linkID = id
	if f.err != nil {
		return nil, f.err
	}
	return &model.BatchSummary{Processed: 1, Scraped: 1}, nil
}

type fakeMerger struct {
	live bool
	err  error
}

func (f *fakeMerger) Run(_ context.Context, live bool) (*merge.Report, error) {
	f.live = live
	if f.err != nil {
		return nil, f.err
	}
	return &merge.Report{Live: live, GroupsProcessed: 3, RecordsDeleted: 4, FinalCount: 10}, nil
}

type testEnv struct {
	router    *gin.Engine
	store     *store.MemoryStore
	queue     *queue.Queue
	processor *fakeProcessor
	merger    *fakeMerger
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemoryStore()
	q := queue.New(s, nil)
	env := &testEnv{store: s, queue: q, processor: &fakeProcessor{}, merger: &fakeMerger{}}
	h := NewHandler(q, env.processor, env.merger, s, metrics.New())
	env.router = NewServer(model.ServerConfig{Mode: gin.TestMode}, h, nil).Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) seed(t *testing.T, urls ...string) []string {
	t.Helper()
	_, err := e.queue.EnqueueURLs(context.Background(), urls)
	require.NoError(t, err)
	links, err := e.queue.NextBatch(context.Background(), len(urls))
	require.NoError(t, err)
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}
	return ids
}

func TestHealth(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestEnqueue_IdempotentInsert(t *testing.T) {
	env := setup(t)
	body := map[string]any{"links": []map[string]any{
		{"url": "https://example.org/a", "type": "program", "relevance": 0.9},
		{"url": "https://example.org/a"},
		{"url": "https://example.org/b", "metadata": map[string]any{"title": "B"}},
	}}

	w := env.do(t, http.MethodPost, "/queue", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["inserted"])

	w = env.do(t, http.MethodPost, "/queue", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["inserted"])
}

func TestEnqueue_RejectsEmptyBody(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodPost, "/queue", map[string]any{"links": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListQueue(t *testing.T) {
	env := setup(t)
	env.seed(t, "https://example.org/a", "https://example.org/b", "https://example.org/c")

	w := env.do(t, http.MethodGet, "/queue?status=pending&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["links"], 2)
	counts, ok := body["status_counts"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, counts["pending"])
}

func TestListQueue_BadParams(t *testing.T) {
	env := setup(t)
	for _, path := range []string{"/queue?status=done", "/queue?limit=-1", "/queue?offset=x"} {
		w := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestBulkUpdate_PartialSuccess(t *testing.T) {
	env := setup(t)
	ids := env.seed(t, "https://example.org/a", "https://example.org/b")

	w := env.do(t, http.MethodPatch, "/queue", map[string]any{
		"ids":    []string{ids[0], ids[1], "missing"},
		"action": "reject",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 2, body["updated"])
	assert.EqualValues(t, 3, body["requested"])
	assert.Equal(t, "rejected 2 of 3", body["message"])
	assert.Len(t, body["failures"], 1)
}

func TestBulkUpdate_UnknownAction(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodPatch, "/queue", map[string]any{"ids": []string{"x"}, "action": "delete"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatus(t *testing.T) {
	env := setup(t)
	env.seed(t, "https://example.org/a")

	w := env.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestProcess(t *testing.T) {
	env := setup(t)

	w := env.do(t, http.MethodPost, "/process", map[string]any{"batchSize": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5, env.processor.batchSize)
	assert.EqualValues(t, 2, decode(t, w)["processed"])

	w = env.do(t, http.MethodPost, "/process", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.processor.batchSize)

	w = env.do(t, http.MethodPost, "/process", map[string]any{"linkId": "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", env.processor.linkID)
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("link x: %w", model.ErrNoLinkAvailable), http.StatusConflict},
		{fmt.Errorf("link x: %w", model.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env := setup(t)
		env.processor.err = tt.err
		w := env.do(t, http.MethodPost, "/process", map[string]any{"linkId": "x"})
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}

func TestMerge(t *testing.T) {
	env := setup(t)

	w := env.do(t, http.MethodPost, "/merge", map[string]any{"liveMode": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.merger.live)

	body := decode(t, w)
	assert.EqualValues(t, 3, body["groupsProcessed"])
	assert.EqualValues(t, 4, body["recordsDeleted"])
	assert.EqualValues(t, 10, body["finalCount"])

	w = env.do(t, http.MethodPost, "/merge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.merger.live, "merge defaults to dry run")
}

func TestMerge_AlreadyRunning(t *testing.T) {
	env := setup(t)
	env.merger.err = model.ErrMergeInProgress
	w := env.do(t, http.MethodPost, "/merge", map[string]any{"liveMode": true})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListInterventions(t *testing.T) {
	env := setup(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.InsertIntervention(context.Background(), &model.Intervention{
			ID:   fmt.Sprintf("iv-%d", i),
			Name: fmt.Sprintf("Program %d", i),
		}))
	}

	w := env.do(t, http.MethodGet, "/interventions?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["interventions"], 2)
}

func TestListArchived(t *testing.T) {
	env := setup(t)
	for _, id := range []string{"dup-1", "dup-2"} {
		require.NoError(t, env.store.ArchiveIntervention(context.Background(), &model.ArchivedIntervention{
			ID: id, MergedInto: "keeper", Record: &model.Intervention{ID: id, Name: "Backtrack"},
		}))
	}

	w := env.do(t, http.MethodGet, "/interventions/archived?offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	items, ok := body["archived"].([]any)
	require.True(t, ok, w.Body.String())
	require.Len(t, items, 1)
	assert.Equal(t, "dup-2", items[0].(map[string]any)["id"])

	w = env.do(t, http.MethodGet, "/interventions/archived?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
