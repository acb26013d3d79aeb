package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/continuity"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(_ context.Context, p generation.Prompt) (*generation.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &generation.Result{Answer: "grounded on: " + p.Context, Model: "stub"}, nil
}

func (g *stubGenerator) Ping(context.Context) error { return nil }

func (g *stubGenerator) Model() string { return "stub" }

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *storage.SQLiteStorage
	manager *indexer.Manager
	gen     *stubGenerator
}

func newTestEnv(t *testing.T, items []models.CatalogItem) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if len(items) > 0 {
		_, err = store.UpsertItems(ctx, items)
		require.NoError(t, err)
	}

	embedder := embedding.NewMockEmbedder(256)
	mgr := indexer.NewManager(store, embedder, indexer.Options{IndexType: "memory"})
	if len(items) > 0 {
		_, err = mgr.Refresh(ctx)
		require.NoError(t, err)
	}

	sessions := session.NewMemoryStore(session.Options{})
	t.Cleanup(func() { _ = sessions.Close() })
	gen := &stubGenerator{}
	// A generous match distance keeps the hashed test embeddings matching.
	engine := continuity.NewEngine(mgr, continuity.Config{MatchDistance: 0.9})
	svc := qa.NewService(sessions, engine, gen)

	srv := NewServer(Deps{
		QA:        svc,
		Index:     mgr,
		Catalog:   store,
		Sessions:  sessions,
		DiskPaths: []string{filepath.Join(dir, "catalog.db")},
		Version:   "test",
	}, &config.ServerConfig{Port: 3032}, zap.NewNop())
	return &testEnv{srv: srv, handler: srv.Handler(), store: store, manager: mgr, gen: gen}
}

func sampleItems() []models.CatalogItem {
	return []models.CatalogItem{
		{ID: "1", Description: "hybrid strain thc 20% relaxing calm evening blend with lavender notes and a smooth finish for long nights"},
		{ID: "2", Description: "sativa strain thc 15% energizing"},
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestHandleAsk(t *testing.T) {
	env := newTestEnv(t, sampleItems())

	w := env.do(t, http.MethodPost, "/api/v1/qa?q="+url.QueryEscape("relaxing hybrid strain"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.AskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.True(t, resp.ContextChanged)
	require.NotNil(t, resp.Item)
	assert.Equal(t, "1", resp.Item.ID)
	assert.True(t, strings.HasSuffix(resp.Item.Description, "..."))
	assert.Equal(t, 103, len([]rune(resp.Item.Description)))
	assert.Equal(t, "stub", resp.ModelStats.Model)

	w = env.do(t, http.MethodPost, "/api/v1/qa", `{"q":"relaxing hybrid strain","session_id":"`+resp.SessionID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var again models.AskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&again))
	assert.Equal(t, resp.SessionID, again.SessionID)
	assert.False(t, again.ContextChanged)
}

func TestHandleAsk_EmptyQuestion(t *testing.T) {
	env := newTestEnv(t, sampleItems())

	for _, target := range []string{"/api/v1/qa", "/api/v1/qa?q=%20%20"} {
		w := env.do(t, http.MethodPost, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	w := env.do(t, http.MethodPost, "/api/v1/qa", `{"q":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAsk_GenerationFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t, sampleItems())
	env.gen.err = errors.New("connection refused")

	w := env.do(t, http.MethodPost, "/api/v1/qa?q=hello&session_id=abc", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "abc", body["session_id"])
	assert.NotEmpty(t, body["error"])
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t, sampleItems())

	w := env.do(t, http.MethodGet, "/api/v1/search?q=energizing+sativa", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.SearchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, models.DefaultSearchK, resp.K)
	require.Len(t, resp.Results, 2, "k is clamped to the catalog size")
	assert.Equal(t, "2", resp.Results[0].ID)
	assert.InDelta(t, 1-resp.Results[0].Distance, resp.Results[0].Score, 1e-9)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)

	w = env.do(t, http.MethodGet, "/api/v1/search?q=sativa&k=50", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, models.MaxSearchK, resp.K)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	env := newTestEnv(t, sampleItems())

	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/api/v1/search"},
		{"long q", "/api/v1/search?q=" + strings.Repeat("a", 501)},
		{"bad k", "/api/v1/search?q=x&k=three"},
		{"negative k", "/api/v1/search?q=x&k=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleSearch_NotReady(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/search?q=x", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleRefresh(t *testing.T) {
	env := newTestEnv(t, sampleItems())
	_, err := env.store.UpsertItems(context.Background(), []models.CatalogItem{{ID: "3", Description: "indica tea"}})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/index/refresh", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Status    string `json:"status"`
		ItemCount int    `json:"item_count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 3, body.ItemCount)
	assert.Equal(t, 3, env.manager.Stats().Items)
}

func TestHandleRefresh_EmptyCatalog(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/index/refresh", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, sampleItems())
	_ = env.do(t, http.MethodPost, "/api/v1/qa?q=relaxing", "")

	w := env.do(t, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Ready)
	assert.Equal(t, int64(2), resp.CatalogItems)
	assert.Equal(t, 2, resp.Index.Items)
	assert.Equal(t, 4, resp.Index.Capacity)
	assert.Equal(t, 1, resp.Sessions)
	assert.Positive(t, resp.DiskUsageBytes)
	assert.Equal(t, "test", resp.Version)
}

func TestHandleHealth(t *testing.T) {
	ready := newTestEnv(t, sampleItems())
	w := ready.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	notReady := newTestEnv(t, nil)
	w = notReady.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
