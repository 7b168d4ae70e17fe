package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

var _ list.Item = candidateItem{}

// candidateItem wraps [models.ScoredCandidate] to implement [list.Item].
type candidateItem struct {
	candidate models.ScoredCandidate
}

func (i candidateItem) FilterValue() string { return i.candidate.Title }

func (i candidateItem) Title() string {
	return fmt.Sprintf("%s - %s", i.candidate.ArtistLine(), i.candidate.Title)
}

func (i candidateItem) Description() string {
	parts := []string{fmt.Sprintf("score %.1f", i.candidate.Score)}
	if i.candidate.Album != "" {
		parts = append(parts, i.candidate.Album)
	}
	if i.candidate.DurationSec > 0 {
		parts = append(parts, shared.FormatDuration(i.candidate.DurationSec))
	}
	parts = append(parts, i.candidate.ID)
	return strings.Join(parts, " • ")
}

func candidateItems(candidates []models.ScoredCandidate) []list.Item {
	items := make([]list.Item, len(candidates))
	for i, c := range candidates {
		items[i] = candidateItem{candidate: c}
	}
	return items
}
