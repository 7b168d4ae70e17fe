package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LocalTrackEntry is one track parsed from a local playlist file.
//
// Album is empty and DurationSec is 0 when the source does not carry them.
type LocalTrackEntry struct {
	Artist      string
	Title       string
	Album       string
	DurationSec int
	SourcePath  string
	Line        int // 1-based line in the source file
	Position    int // 0-based order within the playlist
}

// NormalizedKey is the canonical form of a [LocalTrackEntry].
type NormalizedKey struct {
	Artist    string
	Title     string
	Featuring []string
	Swapped   bool // artist and title fields were swapped by detection
}

// Fingerprint returns a stable hash of the canonical artist and title.
//
// Featuring artists are not part of the fingerprint.
func (k NormalizedKey) Fingerprint() string {
	sum := sha256.Sum256([]byte(k.Artist + "\x1f" + k.Title))
	return hex.EncodeToString(sum[:])
}

// Query returns the free-text catalog query for this key.
func (k NormalizedKey) Query() string {
	return strings.TrimSpace(k.Artist + " " + k.Title)
}

// IsZero reports whether the key carries no searchable text.
func (k NormalizedKey) IsZero() bool {
	return k.Artist == "" && k.Title == ""
}

// CatalogCandidate is a track returned by a catalog search.
type CatalogCandidate struct {
	ID          string   `json:"id"`
	Artists     []string `json:"artists"`
	Title       string   `json:"title"`
	Album       string   `json:"album,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	Popularity  int      `json:"popularity"`
}

// ArtistLine joins the candidate's artists for display.
func (c CatalogCandidate) ArtistLine() string {
	return strings.Join(c.Artists, ", ")
}

// ScoredCandidate is a [CatalogCandidate] with the score that ranks it.
type ScoredCandidate struct {
	CatalogCandidate
	Score           float64
	ArtistScore     float64
	TitleScore      float64
	DurationPenalty float64
	FeaturingBoost  float64
	VersionPenalty  float64 // karaoke or live/acoustic/remix mismatch
}
