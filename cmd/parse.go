package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/normalize"
	"github.com/desertthunder/plsync/internal/parser"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

type parsedEntry struct {
	Line        int    `json:"line"`
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
	Query       string `json:"query,omitempty"`
}

type parseOutput struct {
	Path    string        `json:"path"`
	Name    string        `json:"name"`
	Format  string        `json:"format"`
	Entries []parsedEntry `json:"entries"`
	Skipped []string      `json:"skipped"`
}

// Parse reads a playlist file and lists its entries and skipped lines.
func (r *Runner) Parse(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: playlist file is required", shared.ErrMissingArgument)
	}
	showKeys := cmd.Bool("keys")

	result, err := parser.ParseFile(path)
	if err != nil {
		return err
	}

	out := parseOutput{
		Path:    result.Path,
		Name:    result.Name,
		Format:  string(result.Format),
		Entries: make([]parsedEntry, 0, len(result.Entries)),
		Skipped: make([]string, 0, len(result.Errors)),
	}
	for _, e := range result.Entries {
		entry := parsedEntry{Line: e.Line, Artist: e.Artist, Title: e.Title, Album: e.Album, DurationSec: e.DurationSec}
		if showKeys {
			entry.Query = normalize.Normalize(e.Artist, e.Title).Query()
		}
		out.Entries = append(out.Entries, entry)
	}
	for _, pe := range result.Errors {
		out.Skipped = append(out.Skipped, pe.Error())
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s (%s)", out.Name, out.Format))

	headers := []string{"Line", "Artist", "Title", "Album", "Duration"}
	aligns := []formatter.Alignment{formatter.AlignRight, formatter.AlignLeft, formatter.AlignLeft, formatter.AlignLeft, formatter.AlignRight}
	if showKeys {
		headers = append(headers, "Query")
		aligns = append(aligns, formatter.AlignLeft)
	}

	rows := make([][]string, 0, len(out.Entries))
	for _, e := range out.Entries {
		row := []string{strconv.Itoa(e.Line), e.Artist, e.Title, e.Album, shared.FormatDuration(e.DurationSec)}
		if showKeys {
			row = append(row, e.Query)
		}
		rows = append(rows, row)
	}
	r.writePlain("%s\n", formatter.RenderTable(headers, rows, aligns))
	r.writePlain("%d entries, %d skipped\n", len(out.Entries), len(out.Skipped))

	for _, s := range out.Skipped {
		r.writePlain("  ⚠ %s\n", s)
	}
	return nil
}
