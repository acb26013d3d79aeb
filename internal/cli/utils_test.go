package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func sampleSearchResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "relaxing",
		K:         3,
		QueryTime: 12,
		Results: []*models.SearchResult{
			{ID: "1", Description: "hybrid strain thc 20% relaxing", Score: 0.81, Distance: 0.19, Rank: 1},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleSearchResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "relaxing" || len(decoded.Results) != 1 || decoded.Results[0].ID != "1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleSearchResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 1 results", "12ms", "Rank: 1", "Score: 0.8100", "ID: 1", "thc 20% relaxing"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer(t *testing.T) {
	resp := &models.AskResponse{
		SessionID:      "sess-1",
		Question:       "how strong is it",
		Answer:         "It has 20% THC.",
		ContextChanged: true,
		Item:           &models.ItemSummary{ID: "1", Description: "hybrid strain thc 20% relaxing"},
		ModelStats:     models.ModelStats{Model: "llama3", ResponseTimeSeconds: 1.5},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"It has 20% THC.", "Product (new): 1", "Session: sess-1", "llama3 (1.50s)"} {
		if !strings.Contains(out, sub) {
			t.Errorf("answer output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	resp.Item = nil
	_ = WriteAnswer(&buf, resp, OutputText)
	if !strings.Contains(buf.String(), "general answer") {
		t.Errorf("ungrounded answer should say so:\n%s", buf.String())
	}

	buf.Reset()
	_ = WriteAnswer(&buf, resp, OutputJSON)
	var decoded models.AskResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.SessionID != "sess-1" {
		t.Errorf("json answer: %v %+v", err, decoded)
	}
}

func TestWriteItems(t *testing.T) {
	items := []models.CatalogItem{{ID: "a", Description: "first"}, {ID: "b", Description: "second"}}
	var buf bytes.Buffer
	if err := WriteItems(&buf, items, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "a\tfirst") || !strings.Contains(buf.String(), "2 items") {
		t.Errorf("items output:\n%s", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	st := &server.StatusResponse{
		Ready: true,
		Index: indexer.Stats{
			Ready: true, Generation: 3, Items: 2, Capacity: 4, Dimensions: 384,
			IndexType: "hnsw", Source: indexer.SourceLoaded, BuiltAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		CatalogItems:   2,
		Sessions:       1,
		DiskUsageBytes: 2048,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"ready", "Generation:  3 (loaded 2024-05-01 10:00:00)", "2 / capacity 4", "hnsw, 384 dimensions", "Sessions:      1", "2.0 KiB"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		s        string
		maxWords int
		want     string
	}{
		{"one two three", 5, "one two three"},
		{"one two three four", 2, "one two..."},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := TruncateWords(tt.s, tt.maxWords); got != tt.want {
			t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
		}
	}
}
