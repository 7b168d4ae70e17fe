// package normalize canonicalizes artist and title strings for matching.
//
// Every function here is pure and deterministic. Case folding uses
// [cases.Fold], which does not depend on the process locale.
package normalize

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/desertthunder/plsync/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// letters that NFKD does not decompose into base + mark
	letterReplacer = strings.NewReplacer(
		"ø", "o", "đ", "d", "ł", "l", "æ", "ae", "œ", "oe", "þ", "th", "ı", "i",
		"–", "-", "—", "-", "‐", "-", "‒", "-",
		"“", "\"", "”", "\"",
	)

	bracketedFeat = regexp.MustCompile(`\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring|with|w/)\s+([^\)\]]+)[\)\]]`)
	bareFeat      = regexp.MustCompile(`(?:^|\s)(?:feat\.|feat|ft\.|ft|featuring)\s+([^\(\[]+)`)
	bareWith      = regexp.MustCompile(`\s(?:with|w/)\s+(.+)$`)
	featSplit     = regexp.MustCompile(`\s*(?:,|&|\band\b|\bx\b|/|\+)\s*`)

	bracketed  = regexp.MustCompile(`\s*[\(\[]([^\)\]]*)[\)\]]`)
	dashSuffix = regexp.MustCompile(`\s+-\s+([^-]+)$`)
	annotation = regexp.MustCompile(`\b(?:remaster|remastered|remix|remixed|rmx|mix|edit|version|mono|stereo|deluxe|edition|explicit|clean|radio|single|bonus|official|video|audio|lyrics?|hd|hq|live|acoustic|instrumental|demo|extended|original|anniversary|\d{4})\b`)

	artistSeparator = regexp.MustCompile(`\s&\s|\sand\s|,\s|\sx\s|\svs\.?\s|\s\+\s|\s/\s`)
	titleMarker     = regexp.MustCompile(`[\(\[]|\s-\s`)

	tagPatterns = map[string]*regexp.Regexp{
		"live":         regexp.MustCompile(`\blive\b`),
		"acoustic":     regexp.MustCompile(`\bacoustic\b`),
		"remix":        regexp.MustCompile(`\b(?:remix|remixed|rmx)\b`),
		"instrumental": regexp.MustCompile(`\binstrumental\b`),
		"karaoke":      regexp.MustCompile(`\bkaraoke\b|in the style of|originally performed by|\bbacking track\b`),
	}
)

// Normalize derives the [models.NormalizedKey] of an artist/title pair.
//
// Swap detection runs first (see [DetectSwap]); featured artists from both
// fields are merged into one list in order of appearance.
func Normalize(artist, title string) models.NormalizedKey {
	a, t, swapped := DetectSwap(strings.TrimSpace(artist), strings.TrimSpace(title))

	canonArtist, featA := Artist(a)
	canonTitle, featT := Title(t)

	return models.NormalizedKey{
		Artist:    canonArtist,
		Title:     canonTitle,
		Featuring: mergeUnique(featA, featT),
		Swapped:   swapped,
	}
}

// Artist canonicalizes an artist field and returns the featured artists it named.
func Artist(s string) (string, []string) {
	s, feat := extractFeaturing(Fold(s))
	if m := bareWith.FindStringSubmatchIndex(s); m != nil {
		feat = append(feat, splitNames(s[m[2]:m[3]])...)
		s = s[:m[0]]
	}
	return clean(s), mergeUnique(feat, nil)
}

// Title canonicalizes a title field, dropping remaster/remix style annotations
// unless they are the whole title, and returns the featured artists it named.
func Title(s string) (string, []string) {
	folded, feat := extractFeaturing(Fold(s))
	stripped := stripAnnotations(folded)
	if clean(stripped) == "" {
		stripped = folded
	}
	return clean(stripped), feat
}

// Canonical folds and strips punctuation without removing any clauses.
func Canonical(s string) string {
	return clean(Fold(s))
}

// Fold lower-cases s, strips diacritics and maps typographic dashes and quotes to ASCII.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, cases.Fold().String(s))
	if err != nil {
		stripped = strings.ToLower(s)
	}
	return letterReplacer.Replace(stripped)
}

// DetectSwap reports whether artist and title look swapped, as in "Title - Artist" files,
// and returns the fields in corrected order.
//
// Best effort only: it swaps when the title field carries an artist separator
// pattern ("A & B", "A, B", "A x B", "A vs B") and the artist field carries
// neither a separator nor a title marker such as brackets. A real title like
// "Me & You" by a single-word artist will be swapped wrongly.
func DetectSwap(artist, title string) (string, string, bool) {
	if artist == "" || title == "" {
		return artist, title, false
	}

	a, _ := extractFeaturing(Fold(artist))
	t, _ := extractFeaturing(Fold(title))

	if !artistSeparator.MatchString(t) || artistSeparator.MatchString(a) {
		return artist, title, false
	}
	if titleMarker.MatchString(a) || titleMarker.MatchString(t) {
		return artist, title, false
	}
	return title, artist, true
}

// Tags returns the sorted version tags (live, acoustic, remix, instrumental, karaoke) present in s.
func Tags(s string) []string {
	folded := Fold(s)
	var tags []string
	for tag, re := range tagPatterns {
		if re.MatchString(folded) {
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}

// IsKaraoke reports whether s looks like a karaoke or cover backing track.
func IsKaraoke(s string) bool {
	return tagPatterns["karaoke"].MatchString(Fold(s))
}

func extractFeaturing(s string) (string, []string) {
	var feat []string
	for _, m := range bracketedFeat.FindAllStringSubmatch(s, -1) {
		feat = append(feat, splitNames(m[1])...)
	}
	s = bracketedFeat.ReplaceAllString(s, "")

	if m := bareFeat.FindStringSubmatchIndex(s); m != nil {
		feat = append(feat, splitNames(s[m[2]:m[3]])...)
		s = s[:m[0]] + " " + s[m[3]:]
	}
	return strings.TrimSpace(s), feat
}

func stripAnnotations(s string) string {
	s = bracketed.ReplaceAllStringFunc(s, func(seg string) string {
		inner := bracketed.FindStringSubmatch(seg)[1]
		if annotation.MatchString(inner) {
			return ""
		}
		return seg
	})
	if m := dashSuffix.FindStringSubmatchIndex(s); m != nil && annotation.MatchString(s[m[2]:m[3]]) {
		s = s[:m[0]]
	}
	return s
}

func splitNames(s string) []string {
	var names []string
	for _, part := range featSplit.Split(s, -1) {
		if name := clean(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func clean(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '‘' || r == '`':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func mergeUnique(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, name := range append(slices.Clone(a), b...) {
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
