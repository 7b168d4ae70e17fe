// YouTube Music implementation of [Catalog] and [PlaylistWriter]
//
// Communicates with the FastAPI proxy server wrapping the ytmusicapi Python library.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
)

const (
	defaultYTBaseURL   = "http://localhost:8080"
	youtubeServiceName = "YouTube Music"
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	Duration    string          `json:"duration"`
	DurationSec int             `json:"duration_seconds"`
	SetVideoID  string          `json:"setVideoId,omitempty"` // For playlist operations
}

// YouTubeService implements [Service] for YouTube Music via the proxy.
type YouTubeService struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
}

// NewYouTubeService creates a new YouTube Music service instance.
//
// authFile is the path to the proxy's browser.json or oauth.json, sent as X-Auth-File.
func NewYouTubeService(baseURL, authFile string) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	return &YouTubeService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authFile:   authFile,
		httpClient: http.DefaultClient,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return youtubeServiceName
}

// SearchTracks searches songs via GET /api/search?q={query}&filter=songs&limit={limit}.
func (y *YouTubeService) SearchTracks(ctx context.Context, query string, limit int) ([]models.CatalogCandidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("filter", "songs")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var results []YouTubeTrack
	if err := y.doRequest(ctx, "search", http.MethodGet, "/api/search?"+params.Encode(), nil, &results); err != nil {
		return nil, err
	}

	candidates := make([]models.CatalogCandidate, 0, len(results))
	for _, r := range results {
		if r.VideoID == "" {
			continue
		}
		candidates = append(candidates, youtubeCandidate(r))
		if limit > 0 && len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// ReplacePlaylist finds the library playlist called name, creating it when missing,
// removes its current items and adds ids in order.
func (y *YouTubeService) ReplacePlaylist(ctx context.Context, name, description string, ids []string) (string, error) {
	playlistID, err := y.findPlaylist(ctx, name)
	if err != nil {
		return "", err
	}

	if playlistID == "" {
		createReq := map[string]string{
			"title":          name,
			"description":    description,
			"privacy_status": "PRIVATE",
		}
		var createResp struct {
			PlaylistID string `json:"playlist_id"`
		}
		if err := y.doRequest(ctx, "create playlist", http.MethodPost, "/api/playlists", createReq, &createResp); err != nil {
			return "", err
		}
		playlistID = createResp.PlaylistID
	} else if err := y.clearPlaylist(ctx, playlistID); err != nil {
		return "", err
	}

	if len(ids) > 0 {
		addReq := map[string][]string{"video_ids": ids}
		endpoint := fmt.Sprintf("/api/playlists/%s/items", url.PathEscape(playlistID))
		if err := y.doRequest(ctx, "add playlist items", http.MethodPost, endpoint, addReq, nil); err != nil {
			return "", err
		}
	}
	return playlistID, nil
}

// GetPlaylists retrieves all library playlists via GET /api/library/playlists.
func (y *YouTubeService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var ytPlaylists []struct {
		PlaylistID  string `json:"playlistId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Privacy     string `json:"privacy"`
		Count       int    `json:"count"`
	}

	if err := y.doRequest(ctx, "list playlists", http.MethodGet, "/api/library/playlists", nil, &ytPlaylists); err != nil {
		return nil, err
	}

	playlists := make([]Playlist, len(ytPlaylists))
	for i, ytp := range ytPlaylists {
		playlists[i] = Playlist{
			ID:          ytp.PlaylistID,
			Name:        ytp.Title,
			Description: ytp.Description,
			TrackCount:  ytp.Count,
			Public:      ytp.Privacy == "PUBLIC",
		}
	}
	return playlists, nil
}

func (y *YouTubeService) findPlaylist(ctx context.Context, name string) (string, error) {
	playlists, err := y.GetPlaylists(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range playlists {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return "", nil
}

// clearPlaylist removes every item, which the proxy addresses by videoId and setVideoId.
func (y *YouTubeService) clearPlaylist(ctx context.Context, playlistID string) error {
	var playlist struct {
		Tracks []YouTubeTrack `json:"tracks"`
	}
	endpoint := fmt.Sprintf("/api/playlists/%s", url.PathEscape(playlistID))
	if err := y.doRequest(ctx, "get playlist", http.MethodGet, endpoint, nil, &playlist); err != nil {
		return err
	}
	if len(playlist.Tracks) == 0 {
		return nil
	}

	type item struct {
		VideoID    string `json:"videoId"`
		SetVideoID string `json:"setVideoId"`
	}
	items := make([]item, 0, len(playlist.Tracks))
	for _, t := range playlist.Tracks {
		items = append(items, item{VideoID: t.VideoID, SetVideoID: t.SetVideoID})
	}

	return y.doRequest(ctx, "remove playlist items", http.MethodDelete, endpoint+"/items", map[string]any{"videos": items}, nil)
}

func (y *YouTubeService) doRequest(ctx context.Context, op, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return classifyTransport(youtubeServiceName, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return classifyStatus(youtubeServiceName, op, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), errResp.Detail)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func youtubeCandidate(t YouTubeTrack) models.CatalogCandidate {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	c := models.CatalogCandidate{
		ID:          t.VideoID,
		Artists:     artists,
		Title:       t.Title,
		DurationSec: t.DurationSec,
	}
	if c.DurationSec == 0 {
		c.DurationSec = parseClock(t.Duration)
	}
	if t.Album != nil {
		c.Album = t.Album.Name
	}
	return c
}

// parseClock converts "m:ss" or "h:mm:ss" into seconds, returning 0 when malformed.
func parseClock(s string) int {
	if s == "" {
		return 0
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
