// package formatter renders reconcile run reports in various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/tasks"
)

// Format is a report output format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// ParseFormat maps a file extension or format name onto a [Format].
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", name)
	}
}

// Row is one entry in a run report.
type Row struct {
	Playlist    string                `json:"playlist"`
	Line        int                   `json:"line"`
	Artist      string                `json:"artist"`
	Title       string                `json:"title"`
	Kind        models.DecisionKind   `json:"decision"`
	Score       float64               `json:"score"`
	CandidateID string                `json:"candidate_id,omitempty"`
	Origin      models.DecisionOrigin `json:"origin"`
	Reason      string                `json:"reason,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Rows flattens a summary into report rows in playlist and source order.
//
// Without all, only rejected and deferred entries are included.
func Rows(summary *tasks.RunSummary, all bool) []Row {
	var rows []Row
	for _, p := range summary.Playlists {
		for _, e := range p.Entries {
			if !all && e.Decision.Kind.Accepted() && e.Err == nil {
				continue
			}
			row := Row{
				Playlist:    p.Name,
				Line:        e.Entry.Line,
				Artist:      e.Entry.Artist,
				Title:       e.Entry.Title,
				Kind:        e.Decision.Kind,
				Score:       e.Decision.Score,
				CandidateID: e.Decision.CandidateID(),
				Origin:      e.Decision.Origin,
				Reason:      e.Decision.Reason,
			}
			if e.Err != nil {
				row.Error = e.Err.Error()
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// ExportToCSV converts report rows to CSV with columns: Playlist, Line, Artist, Title, Decision, Score, Candidate, Origin, Reason
func ExportToCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Playlist", "Line", "Artist", "Title", "Decision", "Score", "Candidate", "Origin", "Reason"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, row := range rows {
		reason := row.Reason
		if row.Error != "" {
			reason = row.Error
		}
		record := []string{
			row.Playlist,
			strconv.Itoa(row.Line),
			row.Artist,
			row.Title,
			string(row.Kind),
			strconv.FormatFloat(row.Score, 'f', 1, 64),
			row.CandidateID,
			string(row.Origin),
			reason,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a run summary and its rows to Markdown, one section per playlist
func ExportToMarkdown(summary *tasks.RunSummary, rows []Row) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Reconcile run %s\n\n", summary.RunID)
	fmt.Fprintf(&buf, "**Started**: %s\n", summary.StartedAt.Format(time.RFC3339))
	if !summary.CompletedAt.IsZero() {
		fmt.Fprintf(&buf, "**Duration**: %s\n", summary.CompletedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&buf, "**Playlists**: %d (%d unchanged)\n", len(summary.Playlists), summary.Unchanged)
	fmt.Fprintf(&buf, "**Decisions**: %d auto accepted, %d manually accepted, %d rejected, %d deferred\n",
		summary.AutoAccepted, summary.ManuallyAccepted, summary.Rejected, summary.Deferred)
	fmt.Fprintf(&buf, "**Skipped lines**: %d\n", summary.SkippedLines)
	if summary.FatalError != nil {
		fmt.Fprintf(&buf, "**Fatal error**: %v\n", summary.FatalError)
	}
	buf.WriteString("\n")

	if len(rows) == 0 {
		buf.WriteString("Nothing needs attention.\n")
		return buf.Bytes(), nil
	}

	current := ""
	n := 0
	for _, row := range rows {
		if row.Playlist != current {
			current = row.Playlist
			n = 0
			fmt.Fprintf(&buf, "## %s\n\n", current)
		}
		n++
		detail := row.Reason
		if row.Error != "" {
			detail = row.Error
		}
		fmt.Fprintf(&buf, "%d. %s - %s (line %d): **%s**", n, row.Artist, row.Title, row.Line, row.Kind)
		if row.CandidateID != "" {
			fmt.Fprintf(&buf, " `%s`", row.CandidateID)
		}
		if detail != "" {
			fmt.Fprintf(&buf, " - %s", detail)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a run summary and its rows to plain text
func ExportToText(summary *tasks.RunSummary, rows []Row) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Run: %s\n", summary.RunID)
	fmt.Fprintf(&buf, "Playlists: %d (%d unchanged)\n", len(summary.Playlists), summary.Unchanged)
	fmt.Fprintf(&buf, "Accepted: %d auto, %d manual\n", summary.AutoAccepted, summary.ManuallyAccepted)
	fmt.Fprintf(&buf, "Rejected: %d\nDeferred: %d\n\n", summary.Rejected, summary.Deferred)

	for _, row := range rows {
		fmt.Fprintf(&buf, "%s:%d\t%s - %s\t%s\n", row.Playlist, row.Line, row.Artist, row.Title, row.Kind)
	}

	return buf.Bytes(), nil
}

type jsonReport struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	Playlists        int       `json:"playlists"`
	Unchanged        int       `json:"unchanged"`
	AutoAccepted     int       `json:"auto_accepted"`
	ManuallyAccepted int       `json:"manually_accepted"`
	Rejected         int       `json:"rejected"`
	Deferred         int       `json:"deferred"`
	SkippedLines     int       `json:"skipped_lines"`
	Queries          int       `json:"queries"`
	FatalError       string    `json:"fatal_error,omitempty"`
	Entries          []Row     `json:"entries"`
}

// ExportToJSON converts a run summary and its rows to indented JSON
func ExportToJSON(summary *tasks.RunSummary, rows []Row) ([]byte, error) {
	report := jsonReport{
		RunID:            summary.RunID,
		StartedAt:        summary.StartedAt,
		CompletedAt:      summary.CompletedAt,
		Playlists:        len(summary.Playlists),
		Unchanged:        summary.Unchanged,
		AutoAccepted:     summary.AutoAccepted,
		ManuallyAccepted: summary.ManuallyAccepted,
		Rejected:         summary.Rejected,
		Deferred:         summary.Deferred,
		SkippedLines:     summary.SkippedLines,
		Queries:          summary.Queries,
		Entries:          rows,
	}
	if report.Entries == nil {
		report.Entries = []Row{}
	}
	if summary.FatalError != nil {
		report.FatalError = summary.FatalError.Error()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// Export renders the report in format.
func Export(summary *tasks.RunSummary, rows []Row, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(rows)
	case FormatMarkdown:
		return ExportToMarkdown(summary, rows)
	case FormatText:
		return ExportToText(summary, rows)
	case FormatJSON:
		return ExportToJSON(summary, rows)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteReport writes a report to path, creating parent directories as needed.
//
// The format is taken from the path's extension. An empty path defaults to
// plsync_report_{run id prefix}.md in the working directory.
func WriteReport(summary *tasks.RunSummary, path string, all bool) (string, error) {
	if path == "" {
		id := summary.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		path = fmt.Sprintf("plsync_report_%s.md", id)
	}

	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return "", err
	}

	data, err := Export(summary, Rows(summary, all), format)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}
