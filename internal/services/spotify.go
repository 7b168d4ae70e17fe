// Spotify implementation of [Catalog] and [PlaylistWriter] on top of zmb3/spotify
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	spotifyServiceName = "Spotify"
	spotifyBatchSize   = 100
	spotifyMaxResults  = 50
)

var unexpectedStatus = regexp.MustCompile(`HTTP (\d{3})`)

// SpotifyService implements [Service] with the Spotify Web API.
//
// The underlying [oauth2] client refreshes expired access tokens with the refresh token.
type SpotifyService struct {
	client *spotify.Client
}

// NewSpotifyService creates a Spotify service from stored credentials.
//
// Either an access token or a refresh token is required; tokens are obtained out of band.
func NewSpotifyService(ctx context.Context, creds shared.SpotifyConfig) (*SpotifyService, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, fmt.Errorf("%w: spotify access_token or refresh_token is required", shared.ErrMissingCredentials)
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(creds.ClientID),
		spotifyauth.WithClientSecret(creds.ClientSecret),
		spotifyauth.WithRedirectURL(creds.RedirectURI),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistModifyPrivate,
			spotifyauth.ScopePlaylistModifyPublic,
		),
	)

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	return &SpotifyService{client: spotify.New(auth.Client(ctx, token))}, nil
}

// NewSpotifyServiceWithClient creates a Spotify service over an already authorized HTTP client.
// An empty baseURL uses the public API.
func NewSpotifyServiceWithClient(httpClient *http.Client, baseURL string) *SpotifyService {
	var opts []spotify.ClientOption
	if baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}
	return &SpotifyService{client: spotify.New(httpClient, opts...)}
}

func (s *SpotifyService) Name() string {
	return spotifyServiceName
}

// SearchTracks searches the track catalog.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string, limit int) ([]models.CatalogCandidate, error) {
	if limit <= 0 || limit > spotifyMaxResults {
		limit = spotifyMaxResults
	}

	res, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, s.classify("search", err)
	}
	if res == nil || res.Tracks == nil {
		return nil, nil
	}

	candidates := make([]models.CatalogCandidate, 0, len(res.Tracks.Tracks))
	for _, track := range res.Tracks.Tracks {
		candidates = append(candidates, spotifyCandidate(track))
	}
	return candidates, nil
}

// ReplacePlaylist finds the user's playlist called name, creating it when missing, and replaces its tracks.
func (s *SpotifyService) ReplacePlaylist(ctx context.Context, name, description string, ids []string) (string, error) {
	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return "", s.classify("current user", err)
	}

	playlistID, err := s.findPlaylist(ctx, user.ID, name)
	if err != nil {
		return "", err
	}

	if playlistID == "" {
		created, err := s.client.CreatePlaylistForUser(ctx, user.ID, name, description, false, false)
		if err != nil {
			return "", s.classify("create playlist", err)
		}
		playlistID = created.ID
	}

	trackIDs := make([]spotify.ID, len(ids))
	for i, id := range ids {
		trackIDs[i] = spotify.ID(id)
	}

	first := trackIDs[:min(len(trackIDs), spotifyBatchSize)]
	if err := s.client.ReplacePlaylistTracks(ctx, playlistID, first...); err != nil {
		return "", s.classify("replace playlist tracks", err)
	}

	for start := spotifyBatchSize; start < len(trackIDs); start += spotifyBatchSize {
		batch := trackIDs[start:min(start+spotifyBatchSize, len(trackIDs))]
		if _, err := s.client.AddTracksToPlaylist(ctx, playlistID, batch...); err != nil {
			return "", s.classify("add playlist tracks", err)
		}
	}

	return string(playlistID), nil
}

func (s *SpotifyService) findPlaylist(ctx context.Context, userID, name string) (spotify.ID, error) {
	page, err := s.client.CurrentUsersPlaylists(ctx, spotify.Limit(spotifyMaxResults))
	if err != nil {
		return "", s.classify("list playlists", err)
	}

	for {
		for _, p := range page.Playlists {
			if p.Name == name && p.Owner.ID == userID {
				return p.ID, nil
			}
		}

		err := s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			return "", nil
		}
		if err != nil {
			return "", s.classify("list playlists", err)
		}
	}
}

// classify maps zmb3/spotify and oauth2 errors onto the shared error taxonomy.
func (s *SpotifyService) classify(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &shared.AuthError{Service: spotifyServiceName, Err: err}
	}

	if status, msg, ok := spotifyStatus(err); ok {
		return classifyStatus(spotifyServiceName, op, status, 0, msg)
	}
	return classifyTransport(spotifyServiceName, op, err)
}

// spotifyStatus extracts the HTTP status from a [spotify.Error], or from the
// message of the plain errors the client returns for bodiless responses.
func spotifyStatus(err error) (int, string, bool) {
	var apiErr spotify.Error
	var apiErrPtr *spotify.Error

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		if m := unexpectedStatus.FindStringSubmatch(err.Error()); m != nil {
			status, _ := strconv.Atoi(m[1])
			return status, err.Error(), true
		}
		return 0, "", false
	}

	status := apiErr.Status
	if status == 0 {
		if m := unexpectedStatus.FindStringSubmatch(apiErr.Message); m != nil {
			status, _ = strconv.Atoi(m[1])
		}
	}
	if status == 0 {
		status = http.StatusBadGateway
	}
	return status, apiErr.Message, true
}

func spotifyCandidate(track spotify.FullTrack) models.CatalogCandidate {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	return models.CatalogCandidate{
		ID:          string(track.ID),
		Artists:     artists,
		Title:       track.Name,
		Album:       track.Album.Name,
		DurationSec: int(track.Duration) / 1000,
		Popularity:  int(track.Popularity),
	}
}
