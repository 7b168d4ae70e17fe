package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Catalog is a searchable remote music catalog.
//
// Implementations map rate limits, 5xx responses and network failures to
// [*shared.TransientError] and rejected credentials to [*shared.AuthError].
type Catalog interface {
	// Name returns the service name (e.g., "Spotify", "YouTube Music").
	Name() string

	// SearchTracks returns up to limit tracks matching a free-text query.
	SearchTracks(ctx context.Context, query string, limit int) ([]models.CatalogCandidate, error)
}

// PlaylistWriter replaces the contents of a named remote playlist.
type PlaylistWriter interface {
	// ReplacePlaylist creates the playlist when it does not exist and sets its tracks to ids, in order.
	// Returns the remote playlist ID.
	ReplacePlaylist(ctx context.Context, name, description string, ids []string) (string, error)
}

// Service is a catalog that can also write playlists.
type Service interface {
	Catalog
	PlaylistWriter
}

// Playlist represents a remote playlist.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
}

// classifyStatus maps an unsuccessful HTTP status onto the shared error taxonomy.
func classifyStatus(service, op string, status int, retryAfter time.Duration, detail string) error {
	msg := fmt.Sprintf("status %d", status)
	if detail != "" {
		msg = fmt.Sprintf("status %d: %s", status, detail)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &shared.AuthError{Service: service, Err: errors.New(msg)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &shared.TransientError{Op: service + " " + op, RetryAfter: retryAfter, Err: errors.New(msg)}
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %s", shared.ErrPlaylistNotFound, service, op, msg)
	default:
		return fmt.Errorf("%w: %s %s: %s", shared.ErrAPIRequest, service, op, msg)
	}
}

// classifyTransport wraps request failures that never produced a response.
// Context cancellation passes through unchanged; everything else is retried.
func classifyTransport(service, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &shared.TransientError{Op: service + " " + op, Err: err}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
