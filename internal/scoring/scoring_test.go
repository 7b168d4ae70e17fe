package scoring

import (
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
)

func testOptions() Options {
	return Options{
		ArtistWeight:     0.5,
		TitleWeight:      0.5,
		MaxDurationDelta: 10,
		DurationPenalty:  15,
		FeaturingBoost:   5,
		Floor:            30,
	}
}

func candidate(id, artist, title string, duration, popularity int) models.CatalogCandidate {
	return models.CatalogCandidate{
		ID:          id,
		Artists:     []string{artist},
		Title:       title,
		DurationSec: duration,
		Popularity:  popularity,
	}
}

func TestScore(t *testing.T) {
	scorer := New(testOptions())
	key := normalize.Normalize("Queen", "Bohemian Rhapsody")

	t.Run("exact match scores 100", func(t *testing.T) {
		got := scorer.Score(key, 354, []models.CatalogCandidate{candidate("a", "Queen", "Bohemian Rhapsody", 354, 80)})
		if len(got) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(got))
		}
		if got[0].Score != 100 {
			t.Errorf("expected score 100, got %.2f", got[0].Score)
		}
		if got[0].ArtistScore != 1 || got[0].TitleScore != 1 {
			t.Errorf("expected perfect sub-scores, got artist=%.2f title=%.2f", got[0].ArtistScore, got[0].TitleScore)
		}
	})

	t.Run("duration penalty ramps", func(t *testing.T) {
		tests := []struct {
			name     string
			remote   int
			expected float64
		}{
			{"within tolerance", 360, 100},
			{"halfway up the ramp", 369, 92.5},
			{"full penalty", 374, 85},
			{"beyond the ramp", 500, 85},
			{"unknown remote duration", 0, 100},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got := scorer.Score(key, 354, []models.CatalogCandidate{candidate("a", "Queen", "Bohemian Rhapsody", tt.remote, 0)})
				if len(got) != 1 || got[0].Score != tt.expected {
					t.Errorf("expected score %.2f, got %+v", tt.expected, got)
				}
			})
		}
	})

	t.Run("featuring boost is clamped", func(t *testing.T) {
		feat := normalize.Normalize("Daft Punk", "Get Lucky (feat. Pharrell Williams)")
		c := models.CatalogCandidate{ID: "gl", Artists: []string{"Daft Punk", "Pharrell Williams", "Nile Rodgers"}, Title: "Get Lucky"}

		got := scorer.Score(feat, 0, []models.CatalogCandidate{c})
		if len(got) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(got))
		}
		if got[0].FeaturingBoost != 5 {
			t.Errorf("expected featuring boost 5, got %.2f", got[0].FeaturingBoost)
		}
		if got[0].Score != 100 {
			t.Errorf("expected score clamped to 100, got %.2f", got[0].Score)
		}
	})

	t.Run("version mismatches are penalized", func(t *testing.T) {
		tests := []struct {
			title    string
			expected float64
		}{
			{"Bohemian Rhapsody (Karaoke Version)", 60},
			{"Bohemian Rhapsody (Live Aid)", 90},
		}
		for _, tt := range tests {
			got := scorer.Score(key, 0, []models.CatalogCandidate{candidate("v", "Queen", tt.title, 0, 0)})
			if len(got) != 1 || got[0].Score != tt.expected {
				t.Errorf("%q: expected score %.2f, got %+v", tt.title, tt.expected, got)
			}
		}
	})

	t.Run("matching versions are not penalized", func(t *testing.T) {
		entry := models.LocalTrackEntry{Artist: "Queen", Title: "Bohemian Rhapsody (Live Aid)"}
		target := NewTarget(entry, normalize.Normalize(entry.Artist, entry.Title))

		got := scorer.ScoreTarget(target, []models.CatalogCandidate{candidate("v", "Queen", "Bohemian Rhapsody - Live Aid", 0, 0)})
		if len(got) != 1 || got[0].VersionPenalty != 0 {
			t.Errorf("expected no version penalty, got %+v", got)
		}
	})

	t.Run("candidates under the floor are dropped", func(t *testing.T) {
		got := scorer.Score(key, 0, []models.CatalogCandidate{
			candidate("a", "Queen", "Bohemian Rhapsody", 0, 0),
			candidate("b", "ZZ Top", "Tush", 0, 0),
		})
		if len(got) != 1 || got[0].ID != "a" {
			t.Errorf("expected only the matching candidate, got %+v", got)
		}
	})

	t.Run("swapped entries still match", func(t *testing.T) {
		swapped := normalize.Normalize("Sabali", "Amadou & Mariam")
		got := scorer.Score(swapped, 0, []models.CatalogCandidate{candidate("s", "Amadou & Mariam", "Sabali", 0, 0)})
		if len(got) != 1 || got[0].Score != 100 {
			t.Errorf("expected a perfect match, got %+v", got)
		}
	})

	t.Run("swapped entries read versions from the artist field", func(t *testing.T) {
		entry := models.LocalTrackEntry{Artist: "Sabali Live", Title: "Amadou & Mariam"}
		key := normalize.Normalize(entry.Artist, entry.Title)
		if !key.Swapped {
			t.Fatalf("expected swap to be detected, got %+v", key)
		}

		target := NewTarget(entry, key)
		if target.RawTitle != "Sabali Live" {
			t.Errorf("expected raw title from the artist field, got %q", target.RawTitle)
		}

		got := scorer.ScoreTarget(target, []models.CatalogCandidate{candidate("s", "Amadou & Mariam", "Sabali - Live", 0, 0)})
		if len(got) != 1 || got[0].VersionPenalty != 0 {
			t.Errorf("expected matching live versions to go unpenalized, got %+v", got)
		}
	})

	t.Run("title-only entries ignore the artist weight", func(t *testing.T) {
		titleOnly := normalize.Normalize("", "Bohemian Rhapsody")
		got := scorer.Score(titleOnly, 0, []models.CatalogCandidate{candidate("a", "Queen", "Bohemian Rhapsody", 0, 0)})
		if len(got) != 1 || got[0].Score != 100 {
			t.Errorf("expected title score alone to decide, got %+v", got)
		}
	})
}

func TestRank(t *testing.T) {
	t.Run("equal scores break on popularity", func(t *testing.T) {
		scorer := New(testOptions())
		key := normalize.Normalize("Queen", "Bohemian Rhapsody")

		got := scorer.Score(key, 0, []models.CatalogCandidate{
			candidate("low", "Queen", "Bohemian Rhapsody", 0, 40),
			candidate("high", "Queen", "Bohemian Rhapsody", 0, 70),
		})
		if len(got) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(got))
		}
		if got[0].Score != got[1].Score {
			t.Fatalf("expected equal scores, got %.2f and %.2f", got[0].Score, got[1].Score)
		}
		if got[0].ID != "high" {
			t.Errorf("expected the more popular candidate first, got %q", got[0].ID)
		}
	})

	t.Run("total order regardless of input order", func(t *testing.T) {
		input := []models.ScoredCandidate{
			{CatalogCandidate: models.CatalogCandidate{ID: "c", Popularity: 10}, Score: 85},
			{CatalogCandidate: models.CatalogCandidate{ID: "a", Popularity: 10}, Score: 85},
			{CatalogCandidate: models.CatalogCandidate{ID: "b", Popularity: 90}, Score: 70},
			{CatalogCandidate: models.CatalogCandidate{ID: "d", Popularity: 50}, Score: 85},
		}
		want := []string{"d", "a", "c", "b"}

		for shift := range input {
			rotated := append(append([]models.ScoredCandidate{}, input[shift:]...), input[:shift]...)
			Rank(rotated)
			for i, id := range want {
				if rotated[i].ID != id {
					t.Fatalf("rotation %d: expected %v, got order %v", shift, want, ids(rotated))
				}
			}
		}
	})
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"the boxer", "boxer the", 1, 1},
		{"get lucky", "get lucky", 1, 1},
		{"one", "one more time", 0, 0.5},
		{"", "anything", 0, 0},
	}
	for _, tt := range tests {
		got := TokenSetRatio(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("TokenSetRatio(%q, %q) = %.3f, expected within [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func ids(cs []models.ScoredCandidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
