// package scoring ranks catalog candidates against a normalized local entry.
//
// A score is a weighted blend of artist and title similarity scaled to
// [0, 100], adjusted by a duration penalty, a featuring boost and version
// mismatch penalties, then clamped. Candidates below the floor are dropped.
// [Rank] imposes a total order so equal inputs always produce equal output.
package scoring

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/hbollon/go-edlib"
)

const (
	karaokePenalty = 40
	versionPenalty = 10

	// minimum similarity for a featured artist to count as credited on a candidate
	featuringMatch = 0.85
)

// versionTags are the annotations that must agree between entry and candidate.
var versionTags = []string{"acoustic", "instrumental", "live", "remix"}

// Options holds scorer weights and penalties.
type Options struct {
	ArtistWeight     float64
	TitleWeight      float64
	MaxDurationDelta int // seconds
	DurationPenalty  float64
	FeaturingBoost   float64
	Floor            float64
}

// OptionsFromConfig maps the [matching] config section onto [Options].
func OptionsFromConfig(m shared.MatchingConfig) Options {
	return Options{
		ArtistWeight:     m.ArtistWeight,
		TitleWeight:      m.TitleWeight,
		MaxDurationDelta: m.MaxDurationDelta,
		DurationPenalty:  m.DurationPenalty,
		FeaturingBoost:   m.FeaturingBoost,
		Floor:            m.ScoreFloor,
	}
}

// DefaultOptions returns the options of the embedded default config.
func DefaultOptions() Options {
	return OptionsFromConfig(shared.DefaultConfig().Matching)
}

// Target is the local side of a comparison.
//
// RawTitle is the title as parsed, before annotations were stripped; it is
// only used to detect live/remix/karaoke versions.
type Target struct {
	Key         models.NormalizedKey
	DurationSec int
	RawTitle    string
}

// NewTarget builds a [Target] for a parsed entry and its key.
//
// When the key was swapped the title was parsed from the artist field.
func NewTarget(entry models.LocalTrackEntry, key models.NormalizedKey) Target {
	raw := entry.Title
	if key.Swapped {
		raw = entry.Artist
	}
	return Target{Key: key, DurationSec: entry.DurationSec, RawTitle: raw}
}

// Scorer computes [models.ScoredCandidate] values. It is stateless and safe for concurrent use.
type Scorer struct {
	opts Options
}

// New creates a Scorer. Zero weights fall back to an even split.
func New(opts Options) *Scorer {
	if opts.ArtistWeight+opts.TitleWeight <= 0 {
		opts.ArtistWeight, opts.TitleWeight = 0.5, 0.5
	}
	return &Scorer{opts: opts}
}

// Score scores candidates against key and returns the ranked survivors.
func (s *Scorer) Score(key models.NormalizedKey, durationSec int, candidates []models.CatalogCandidate) []models.ScoredCandidate {
	return s.ScoreTarget(Target{Key: key, DurationSec: durationSec}, candidates)
}

// ScoreTarget scores candidates against t, drops those under the floor and ranks the rest.
func (s *Scorer) ScoreTarget(t Target, candidates []models.CatalogCandidate) []models.ScoredCandidate {
	entryTags := versionSet(t.RawTitle)
	entryKaraoke := normalize.IsKaraoke(t.RawTitle)

	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sc := s.scoreOne(t, entryTags, entryKaraoke, c)
		if sc.Score < s.opts.Floor {
			continue
		}
		scored = append(scored, sc)
	}

	Rank(scored)
	return scored
}

func (s *Scorer) scoreOne(t Target, entryTags []string, entryKaraoke bool, c models.CatalogCandidate) models.ScoredCandidate {
	candTitle, candFeat := normalize.Title(c.Title)
	candArtists := make([]string, 0, len(c.Artists)+len(candFeat))
	for _, a := range c.Artists {
		if canon := normalize.Canonical(a); canon != "" {
			candArtists = append(candArtists, canon)
		}
	}

	sc := models.ScoredCandidate{CatalogCandidate: c}
	sc.ArtistScore = artistScore(t.Key.Artist, candArtists)
	sc.TitleScore = TokenSetRatio(t.Key.Title, candTitle)

	artistWeight, titleWeight := s.opts.ArtistWeight, s.opts.TitleWeight
	if t.Key.Artist == "" {
		artistWeight = 0
	}
	if artistWeight+titleWeight == 0 {
		titleWeight = 1
	}
	base := (artistWeight*sc.ArtistScore + titleWeight*sc.TitleScore) / (artistWeight + titleWeight) * 100

	sc.DurationPenalty = s.durationPenalty(t.DurationSec, c.DurationSec)
	if featured(t.Key.Featuring, slices.Concat(candArtists, candFeat)) {
		sc.FeaturingBoost = s.opts.FeaturingBoost
	}

	candRaw := c.Title + " " + c.ArtistLine() + " " + c.Album
	if !entryKaraoke && normalize.IsKaraoke(candRaw) {
		sc.VersionPenalty += karaokePenalty
	}
	if !slices.Equal(entryTags, versionSet(c.Title)) {
		sc.VersionPenalty += versionPenalty
	}

	total := base - sc.DurationPenalty + sc.FeaturingBoost - sc.VersionPenalty
	sc.Score = round(max(0, min(100, total)))
	return sc
}

// durationPenalty ramps from 0 at MaxDurationDelta to DurationPenalty at twice that.
func (s *Scorer) durationPenalty(local, remote int) float64 {
	if local <= 0 || remote <= 0 {
		return 0
	}
	delta := local - remote
	if delta < 0 {
		delta = -delta
	}
	if delta <= s.opts.MaxDurationDelta {
		return 0
	}
	if s.opts.MaxDurationDelta <= 0 {
		return s.opts.DurationPenalty
	}
	ramp := float64(delta-s.opts.MaxDurationDelta) / float64(s.opts.MaxDurationDelta)
	return round(min(1, ramp) * s.opts.DurationPenalty)
}

// Rank sorts by score descending, then popularity descending, then ID ascending.
func Rank(candidates []models.ScoredCandidate) {
	slices.SortStableFunc(candidates, func(a, b models.ScoredCandidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Popularity, a.Popularity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// artistScore compares the local artist with each candidate artist and with all of them joined.
func artistScore(artist string, candidates []string) float64 {
	if artist == "" || len(candidates) == 0 {
		return 0
	}

	best := 0.0
	for _, c := range append(slices.Clone(candidates), strings.Join(candidates, " ")) {
		best = max(best, TokenSetRatio(artist, c), Similarity(artist, c, edlib.JaroWinkler))
		if best == 1 {
			break
		}
	}
	return best
}

func featured(names, artists []string) bool {
	for _, name := range names {
		for _, artist := range artists {
			if Similarity(name, artist, edlib.JaroWinkler) >= featuringMatch {
				return true
			}
		}
	}
	return false
}

func versionSet(title string) []string {
	var tags []string
	for _, tag := range normalize.Tags(title) {
		if slices.Contains(versionTags, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Similarity returns the edlib similarity of a and b in [0, 1]. Empty strings only match each other.
func Similarity(a, b string, algo edlib.Algorithm) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	sim, err := edlib.StringsSimilarity(a, b, algo)
	if err != nil || math.IsNaN(float64(sim)) {
		return 0
	}
	return float64(sim)
}

// TokenSetRatio compares a and b as sets of words, ignoring order and duplicates.
//
// Shared tokens are moved to the front of both sides before the Levenshtein
// comparison, so "the boxer" and "boxer the" score 1. A side that is a strict
// subset of the other does not score 1 on that alone.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for _, tok := range ta {
		if slices.Contains(tb, tok) {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for _, tok := range tb {
		if !slices.Contains(ta, tok) {
			onlyB = append(onlyB, tok)
		}
	}

	t0 := strings.Join(common, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	return max(
		Similarity(t1, t2, edlib.Levenshtein),
		min(Similarity(t0, t1, edlib.Levenshtein), Similarity(t0, t2, edlib.Levenshtein)),
	)
}

func tokenSet(s string) []string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}
