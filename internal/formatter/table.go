package formatter

import (
	"fmt"
	"strconv"

	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Alignment is a column alignment for [RenderTable].
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// RenderTable renders rows under headers as a rounded table.
// Short rows are padded with empty cells.
func RenderTable(headers []string, rows [][]string, aligns []Alignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// SummaryTable renders one row per playlist with its sync mode and decision counts.
func SummaryTable(summary *tasks.RunSummary) string {
	headers := []string{"Playlist", "Sync", "Entries", "Auto", "Manual", "Rejected", "Deferred", "Skipped", "Status"}
	aligns := []Alignment{AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight, AlignLeft}

	rows := make([][]string, 0, len(summary.Playlists))
	for _, p := range summary.Playlists {
		rows = append(rows, []string{
			p.Name,
			p.Mode.String(),
			strconv.Itoa(len(p.Entries)),
			strconv.Itoa(p.AutoAccepted),
			strconv.Itoa(p.ManuallyAccepted),
			strconv.Itoa(p.Rejected),
			strconv.Itoa(p.Deferred),
			strconv.Itoa(p.Skipped),
			playlistStatus(p),
		})
	}
	return RenderTable(headers, rows, aligns)
}

func playlistStatus(p *tasks.PlaylistResult) string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("failed: %v", p.Err)
	case p.Mode == tasks.Unchanged:
		return "up to date"
	case p.Advanced && p.Written:
		return "synced"
	case p.Advanced:
		return "resolved"
	case p.Deferred > 0:
		return "pending review"
	default:
		return "dry run"
	}
}
