// Package cli provides CLI output helpers for Quill.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/quill/internal/models"
	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputTree prints only the structured document JSON.
	OutputTree OutputFormat = "tree"
)

const excerptLines = 12

// WriteOutcome writes a pipeline outcome to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteOutcome(w io.Writer, out *pipeline.Outcome, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, out)
	case OutputTree:
		var tree interface{}
		if err := json.Unmarshal(out.StructuredDocument, &tree); err != nil {
			return fmt.Errorf("decode structured document: %w", err)
		}
		return writeJSON(w, tree)
	default:
		writeOutcomeText(w, out)
		return nil
	}
}

func writeOutcomeText(w io.Writer, out *pipeline.Outcome) {
	fmt.Fprintf(w, "\nOpened %s as document %s\n", out.SourceDocumentID, out.NewDocumentID)
	fmt.Fprintf(w, "Format: %s | Extraction: %s | Structuring: %s\n",
		out.Format, out.ExtractionMethod, out.StructuringMethod)
	if out.StructuringFailure != "" {
		fmt.Fprintf(w, "AI structuring failed (%s); used heuristic\n", out.StructuringFailure)
	}
	if out.Degraded {
		fmt.Fprintln(w, "Warning: content was not saved; the document is still a placeholder")
	}
	for _, warn := range out.Warnings {
		fmt.Fprintf(w, "  - %s\n", warn)
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s\n\n", utils.Truncate(utils.Excerpt(out.PlainText, excerptLines), 1200))
}

// WriteActivity writes activity events, newest first, in the given format.
func WriteActivity(w io.Writer, events []*models.ActivityEvent, format OutputFormat) error {
	if format == OutputJSON {
		if events == nil {
			events = []*models.ActivityEvent{}
		}
		return writeJSON(w, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No activity.")
		return nil
	}
	for _, e := range events {
		who := e.UserName
		if who == "" {
			who = e.UserID
		}
		line := fmt.Sprintf("%s  %-8s %-20s %s", e.CreatedAt.Local().Format(time.DateTime), e.Action, utils.Truncate(who, 20), e.DocumentID)
		if via, ok := e.Details["via"].(string); ok && via != "" {
			line += " (" + via + ")"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
