// package parser reads local playlist files into [models.LocalTrackEntry] values.
//
// Supported formats are M3U/M3U8 (plain and extended), PLS and freeform
// text with one "Artist - Title" per line. Malformed lines are recorded as
// [ParseError] values and skipped; they never fail the whole file.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Format identifies a playlist file format.
type Format string

const (
	FormatM3U     Format = "m3u"
	FormatPLS     Format = "pls"
	FormatText    Format = "text"
	FormatUnknown Format = ""
)

// Extensions lists the file extensions [Discover] picks up.
var Extensions = []string{".m3u", ".m3u8", ".pls", ".txt"}

// textSeparators are tried in order on freeform lines.
var textSeparators = []string{" - ", " – ", " — ", " :: ", "\t", " : "}

// ParseError describes one skipped line.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v: %s", e.Path, e.Line, shared.ErrParse, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == shared.ErrParse }

// Result is the outcome of parsing one playlist file.
type Result struct {
	Path    string
	Name    string
	Format  Format
	Entries []models.LocalTrackEntry
	Skipped int
	Errors  []*ParseError
}

func (r *Result) add(e models.LocalTrackEntry) {
	e.SourcePath = r.Path
	e.Position = len(r.Entries)
	r.Entries = append(r.Entries, e)
}

func (r *Result) skip(line int, reason string) {
	r.Skipped++
	r.Errors = append(r.Errors, &ParseError{Path: r.Path, Line: line, Reason: reason})
}

// ParseFile opens path, detects its format and parses it.
func ParseFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist %s: %w", path, err)
	}

	format := DetectFormat(path, headLines(data, 10))
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: unsupported playlist format: %s", shared.ErrInvalidInput, path)
	}
	return Parse(bytes.NewReader(data), path, format)
}

// Parse reads r as the given format. path is recorded on every entry and error.
func Parse(r io.Reader, path string, format Format) (*Result, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist %s: %w", path, err)
	}

	result := &Result{
		Path:   path,
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Format: format,
	}

	switch format {
	case FormatM3U:
		parseM3U(lines, result)
	case FormatPLS:
		parsePLS(lines, result)
	case FormatText:
		parseText(lines, result)
	default:
		return nil, fmt.Errorf("%w: unsupported playlist format %q", shared.ErrInvalidInput, format)
	}
	return result, nil
}

// DetectFormat picks a format from the extension, falling back to sniffing head.
//
// Text is only chosen when at least half of the non-blank head lines look like entries.
func DetectFormat(path string, head []string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8":
		return FormatM3U
	case ".pls":
		return FormatPLS
	}

	for _, line := range head {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXTM3U"), strings.HasPrefix(line, "#EXTINF:"):
			return FormatM3U
		case strings.EqualFold(line, "[playlist]"):
			return FormatPLS
		}
	}

	if looksLikeText(head) {
		return FormatText
	}
	return FormatUnknown
}

// Discover returns the playlist files under root in lexical order.
// A root that is itself a file is returned as is.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(p))) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	slices.Sort(paths)
	return paths, nil
}

func looksLikeText(head []string) bool {
	var total, entries int
	for _, line := range head {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		if _, _, ok := splitEntry(line); ok {
			entries++
		}
	}
	return total > 0 && entries*2 >= total
}

// splitEntry splits "Artist - Title" on the first separator that yields two non-empty halves.
func splitEntry(line string) (string, string, bool) {
	for _, sep := range textSeparators {
		artist, title, found := strings.Cut(line, sep)
		if !found {
			continue
		}
		artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
		if artist != "" && title != "" {
			return artist, title, true
		}
	}
	return "", "", false
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func headLines(data []byte, n int) []string {
	lines, _ := readLines(bytes.NewReader(data))
	var head []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		head = append(head, line)
		if len(head) == n {
			break
		}
	}
	return head
}
