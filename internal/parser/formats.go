package parser

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
)

var (
	trackNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^track\s*\d+[\s\-:]+`),
		regexp.MustCompile(`^\d-\d{2}\s+`),
		regexp.MustCompile(`^\d{1,3}\.\s*-\s*`),
		regexp.MustCompile(`^\d{1,3}[\.\)_]\s*`),
		regexp.MustCompile(`^0\d-\s*`),
		regexp.MustCompile(`^\[\d+\]\s*`),
		regexp.MustCompile(`^\(\d+\)\s*`),
		regexp.MustCompile(`^0\d\s+(?:-\s+)?`),
	}

	filenameNoise = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*[\(\[](?:official\s+)?(?:music\s+)?video[\)\]]`),
		regexp.MustCompile(`(?i)\s*[\(\[](?:official\s+)?(?:audio|lyrics?|hd)[\)\]]`),
		regexp.MustCompile(`(?i)\s*[\(\[]visuali[sz]er[\)\]]`),
		regexp.MustCompile(`(?i)\s*[\(\[]\d*kbps[\)\]]`),
		regexp.MustCompile(`(?i)\s*[\(\[](?:flac|wav|mp3|m4a|aac|alac)[\)\]]`),
		regexp.MustCompile(`(?i)\s*[\(\[](?:hq|high\s+quality|lossless)[\)\]]`),
		regexp.MustCompile(`(?i)\s*[\(\[](?:\d+bit|[\d\.]+khz)[\)\]]`),
		regexp.MustCompile(`(?i)^\s*(?:cd|disc|disk)\s*\d+[-\s]+\d+[-\s]+`),
		regexp.MustCompile(`(?i)\s+-\s+(?:cd|disc|disk)\s*\d+\s*$`),
		regexp.MustCompile(`\s*[\(\[]\d{4}[\)\]]\s*$`),
	}

	discDir    = regexp.MustCompile(`(?i)^(?:cd|disc|disk)\s*\d+$`)
	trackIndex = regexp.MustCompile(`^\d{1,3}$`)
	extinf     = regexp.MustCompile(`^#EXTINF:\s*(-?\d+)(?:[^,]*)?,(.*)$`)
	plsKey     = regexp.MustCompile(`(?i)^(file|title|length)(\d+)$`)
)

// parseM3U handles plain and extended M3U. An #EXTINF line applies to the next path line.
func parseM3U(lines []string, r *Result) {
	type pending struct {
		line     int
		duration int
		info     string
	}
	var ext *pending

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			if ext != nil {
				r.skip(ext.line, "#EXTINF without a following path")
			}
			m := extinf.FindStringSubmatch(line)
			if m == nil {
				r.skip(lineNo, "malformed #EXTINF line")
				ext = nil
				continue
			}
			duration, _ := strconv.Atoi(m[1])
			ext = &pending{line: lineNo, duration: max(duration, 0), info: strings.TrimSpace(m[2])}
		case strings.HasPrefix(line, "#PLAYLIST:"):
			if name := strings.TrimSpace(strings.TrimPrefix(line, "#PLAYLIST:")); name != "" {
				r.Name = name
			}
		case strings.HasPrefix(line, "#"):
			continue
		default:
			entry := models.LocalTrackEntry{Line: lineNo}
			if ext != nil {
				entry.Line = ext.line
				entry.DurationSec = ext.duration
				entry.Artist, entry.Title = splitInfo(ext.info)
				ext = nil
			}

			pArtist, pTitle, pAlbum, ok := entryFromPath(line)
			if entry.Title == "" {
				if !ok {
					r.skip(entry.Line, "no track information in path")
					continue
				}
				entry.Title = pTitle
			}
			if entry.Artist == "" {
				entry.Artist = pArtist
			}
			entry.Album = pAlbum
			r.add(entry)
		}
	}

	if ext != nil {
		r.skip(ext.line, "#EXTINF without a following path")
	}
}

// parsePLS collects FileN/TitleN/LengthN keys and emits entries in index order.
func parsePLS(lines []string, r *Result) {
	type item struct {
		line     int
		file     string
		title    string
		duration int
	}
	items := make(map[int]*item)

	get := func(n int) *item {
		if items[n] == nil {
			items[n] = &item{}
		}
		return items[n]
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, ";") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			r.skip(lineNo, "expected key=value")
			continue
		}

		m := plsKey.FindStringSubmatch(strings.TrimSpace(key))
		if m == nil {
			// NumberOfEntries, Version and unknown keys
			continue
		}
		n, _ := strconv.Atoi(m[2])
		value = strings.TrimSpace(value)

		switch strings.ToLower(m[1]) {
		case "file":
			it := get(n)
			it.file = value
			it.line = lineNo
		case "title":
			it := get(n)
			it.title = value
			if it.line == 0 {
				it.line = lineNo
			}
		case "length":
			d, err := strconv.Atoi(value)
			if err != nil {
				r.skip(lineNo, "non-numeric length")
				continue
			}
			get(n).duration = max(d, 0)
		}
	}

	indexes := make([]int, 0, len(items))
	for n := range items {
		indexes = append(indexes, n)
	}
	sort.Ints(indexes)

	for _, n := range indexes {
		it := items[n]
		if it.file == "" {
			r.skip(it.line, "Title"+strconv.Itoa(n)+" without File"+strconv.Itoa(n))
			continue
		}

		entry := models.LocalTrackEntry{Line: it.line, DurationSec: it.duration}
		entry.Artist, entry.Title = splitInfo(it.title)

		pArtist, pTitle, pAlbum, ok := entryFromPath(it.file)
		if entry.Title == "" {
			if !ok {
				r.skip(it.line, "no track information in path")
				continue
			}
			entry.Title = pTitle
		}
		if entry.Artist == "" {
			entry.Artist = pArtist
		}
		entry.Album = pAlbum
		r.add(entry)
	}
}

// parseText reads one "Artist - Title" per line. Lines starting with # or // are comments.
func parseText(lines []string, r *Result) {
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		line = stripTrackNumber(line)
		artist, title, ok := splitEntry(line)
		if !ok {
			r.skip(lineNo, "no artist/title separator")
			continue
		}
		r.add(models.LocalTrackEntry{Artist: artist, Title: title, Line: lineNo})
	}
}

// splitInfo splits "Artist - Title" metadata; without a separator the whole value is the title.
func splitInfo(info string) (string, string) {
	if artist, title, ok := splitEntry(info); ok {
		return artist, title
	}
	return "", strings.TrimSpace(info)
}

// entryFromPath derives artist, title and album from a file path such as
// "Artist/Album/01 - Title.mp3" or "Artist - Title.flac".
func entryFromPath(p string) (artist, title, album string, ok bool) {
	if strings.Contains(p, "://") && !strings.HasPrefix(p, "file://") {
		return "", "", "", false
	}
	p = strings.TrimPrefix(strings.ReplaceAll(p, `\`, "/"), "file://")

	dir, file := path.Split(p)
	name := strings.TrimSuffix(file, path.Ext(file))
	if !strings.Contains(name, " ") && strings.Contains(name, "_") {
		name = strings.ReplaceAll(name, "_", " ")
	}
	name = stripTrackNumber(cleanFilename(name))

	var parts []string
	for _, part := range strings.Split(name, " - ") {
		if part = strings.TrimSpace(part); part != "" && !trackIndex.MatchString(part) {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", "", "", false
	}

	dirs := parentDirs(dir)
	switch {
	case len(parts) >= 3:
		artist, album, title = parts[0], parts[1], stripTrackNumber(parts[len(parts)-1])
	case len(parts) == 2:
		artist, title = parts[0], stripTrackNumber(parts[1])
		if len(dirs) > 0 {
			album = dirs[0]
		}
	default:
		title = parts[0]
		if len(dirs) > 0 {
			album = dirs[0]
		}
		if len(dirs) > 1 {
			artist = dirs[1]
		}
	}

	title = strings.TrimSpace(title)
	return strings.TrimSpace(artist), title, strings.TrimSpace(album), title != ""
}

// parentDirs returns the enclosing directories nearest first, skipping disc folders and drive letters.
func parentDirs(dir string) []string {
	var dirs []string
	segments := strings.Split(strings.Trim(dir, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segments[i])
		if seg == "" || seg == "." || seg == ".." || discDir.MatchString(seg) {
			continue
		}
		if len(seg) == 2 && seg[1] == ':' {
			continue
		}
		dirs = append(dirs, seg)
	}
	return dirs
}

func stripTrackNumber(s string) string {
	for _, re := range trackNumberPatterns {
		if loc := re.FindStringIndex(s); loc != nil {
			return strings.TrimSpace(s[loc[1]:])
		}
	}
	return s
}

func cleanFilename(s string) string {
	for _, re := range filenameNoise {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
