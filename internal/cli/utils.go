// Package cli provides output formatting for the Kotae CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", len(response.Results), response.Query, response.QueryTime)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Distance: %.4f\n", result.Rank, result.Score, result.Distance)
		fmt.Fprintf(w, "ID: %s\n", result.ID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Description, 200))
	}
	return nil
}

// WriteAnswer writes an answer and its grounding.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	if resp.Item != nil {
		changed := ""
		if resp.ContextChanged {
			changed = " (new)"
		}
		fmt.Fprintf(w, "Product%s: %s | %s\n", changed, resp.Item.ID, TruncateWords(resp.Item.Description, 12))
	} else {
		fmt.Fprintln(w, "Product: none (general answer)")
	}
	fmt.Fprintf(w, "Session: %s\n", resp.SessionID)
	fmt.Fprintf(w, "Model: %s (%.2fs)\n", resp.ModelStats.Model, resp.ModelStats.ResponseTimeSeconds)
	return nil
}

// WriteItems lists catalog items.
func WriteItems(w io.Writer, items []models.CatalogItem, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, items)
	}
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\n", item.ID, utils.Truncate(item.Description, 80))
	}
	fmt.Fprintf(w, "\n%d items\n", len(items))
	return nil
}

// WriteStatus writes the server status.
func WriteStatus(w io.Writer, st *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	ready := "not ready"
	if st.Ready {
		ready = "ready"
	}
	fmt.Fprintf(w, "Index:         %s\n", ready)
	if st.Ready {
		fmt.Fprintf(w, "  Generation:  %d (%s %s)\n", st.Index.Generation, st.Index.Source, st.Index.BuiltAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  Items:       %d / capacity %d\n", st.Index.Items, st.Index.Capacity)
		fmt.Fprintf(w, "  Type:        %s, %d dimensions\n", st.Index.IndexType, st.Index.Dimensions)
	}
	if st.Index.IndexPath != "" {
		fmt.Fprintf(w, "  Path:        %s\n", st.Index.IndexPath)
	}
	fmt.Fprintf(w, "Catalog items: %d\n", st.CatalogItems)
	fmt.Fprintf(w, "Sessions:      %d\n", st.Sessions)
	fmt.Fprintf(w, "Disk usage:    %s\n", FormatBytes(st.DiskUsageBytes))
	if st.Version != "" {
		fmt.Fprintf(w, "Version:       %s\n", st.Version)
	}
	return nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
