package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"is it waterproof", "-session", "abc"},
			expected: []string{"-session", "abc", "is it waterproof"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-k", "5", "kettle"},
			expected: []string{"-k", "5", "kettle"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"stainless kettle"},
			expected: []string{"stainless kettle"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-k", "5"},
			expected: []string{"-k", "5", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"blender"}, "blender"},
		{"multiple words", []string{"glass", "jar"}, "glass jar"},
		{"single quoted phrase", []string{"glass jar"}, "glass jar"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinArgs(tt.args); got != tt.expected {
				t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

// clearEnv keeps the caller's environment from steering config tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "INDEX_FILE", "EMBEDDING_MODEL", "OLLAMA_URL", "OLLAMA_MODEL", "PORT", "REDIS_ADDR", "KOTAE_DEBUG"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	configPath := writeConfig(t, dir, `
debug: true
server:
  host: "localhost"
  port: 3100
storage:
  database_path: "./test.db"
`)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
	if cfg.Server.Port != 3100 {
		t.Errorf("port = %d, want 3100", cfg.Server.Port)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, t.TempDir(), `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`)

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_environmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("OLLAMA_MODEL", "mistral")
	configPath := writeConfig(t, t.TempDir(), `
server:
  port: 9000
storage:
  database_path: "./test.db"
`)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want 4000 from PORT", cfg.Server.Port)
	}
	if cfg.Generation.Model != "mistral" {
		t.Errorf("generation model = %q, want mistral", cfg.Generation.Model)
	}
}

func TestLoadConfig_rejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, t.TempDir(), `
storage:
  driver: "oracle"
`)
	if _, _, err := loadConfig(configPath); err == nil {
		t.Fatal("expected validation error for unknown storage driver")
	}
}

type fakeImporter struct {
	counts map[string]int
	calls  []string
}

func (f *fakeImporter) Import(_ context.Context, path string) (int, error) {
	f.calls = append(f.calls, path)
	n, ok := f.counts[path]
	if !ok {
		return 0, errors.New("parse failed")
	}
	return n, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) (int, error) {
	f.calls++
	return 7, f.err
}

func TestImportBatch(t *testing.T) {
	t.Run("imports every file and refreshes once", func(t *testing.T) {
		im := &fakeImporter{counts: map[string]int{"a.json": 2, "b.yaml": 3}}
		ref := &fakeRefresher{}
		importBatch(im, ref, zap.NewNop())(context.Background(), []string{"a.json", "bad.json", "b.yaml"})
		if !reflect.DeepEqual(im.calls, []string{"a.json", "bad.json", "b.yaml"}) {
			t.Errorf("import calls = %v", im.calls)
		}
		if ref.calls != 1 {
			t.Errorf("refresh calls = %d, want 1", ref.calls)
		}
	})
	t.Run("no refresh when nothing was written", func(t *testing.T) {
		im := &fakeImporter{counts: map[string]int{}}
		ref := &fakeRefresher{}
		importBatch(im, ref, zap.NewNop())(context.Background(), []string{"bad.json"})
		if ref.calls != 0 {
			t.Errorf("refresh calls = %d, want 0", ref.calls)
		}
	})
}

func TestSearchResponse(t *testing.T) {
	hits := []indexer.Hit{
		{Item: models.CatalogItem{ID: "p1", Description: "kettle"}, Distance: 0.25},
		{Item: models.CatalogItem{ID: "p2", Description: "blender"}, Distance: 0.5},
	}
	resp := searchResponse(&models.SearchQuery{Query: "kettle", K: 2}, hits, 3*time.Millisecond)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	first := resp.Results[0]
	if first.ID != "p1" || first.Rank != 1 || first.Score != 0.75 {
		t.Errorf("first result = %+v", first)
	}
	if resp.Results[1].Rank != 2 || resp.QueryTime != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAskViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/qa" {
			http.NotFound(w, r)
			return
		}
		var req models.AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.AskResponse{
			SessionID: req.SessionID,
			Question:  req.Question,
			Answer:    "yes",
		})
	}))
	defer srv.Close()

	resp, err := askViaHTTP(srv.URL, "is it glass?", "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "s-1" || resp.Question != "is it glass?" || resp.Answer != "yes" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "glass jar" || r.URL.Query().Get("k") != "4" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.SearchResponse{Query: "glass jar", K: 4})
	}))
	defer srv.Close()

	resp, err := searchViaHTTP(srv.URL, &models.SearchQuery{Query: "glass jar", K: 4})
	if err != nil {
		t.Fatal(err)
	}
	if resp.K != 4 {
		t.Errorf("k = %d, want 4", resp.K)
	}
}

func TestDoJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"index not ready"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := doJSON(http.MethodGet, srv.URL, nil, &out)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if got := err.Error(); got != `server returned 503: {"error":"index not ready"}` {
		t.Errorf("error = %q", got)
	}
}

func TestLocalStatus(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	configPath := writeConfig(t, dir, `
storage:
  database_path: "./catalog.db"
index:
  path: "./catalog.idx"
embedding:
  backend: "mock"
  dimensions: 64
`)

	status, err := localStatus(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if status.Ready {
		t.Error("local status should not report a ready index")
	}
	if status.CatalogItems != 0 {
		t.Errorf("catalog items = %d, want 0", status.CatalogItems)
	}
	if status.Index.IndexType != "hnsw" || status.Index.Dimensions != 64 {
		t.Errorf("index = %+v", status.Index)
	}
	if status.DiskUsageBytes <= 0 {
		t.Errorf("disk usage = %d, want the sqlite file counted", status.DiskUsageBytes)
	}
}
