// Package services defines the [Catalog] and [PlaylistWriter] interfaces for remote music services and implements them for Spotify and YouTube Music.
//
// # Catalog Interface
//
// The reconcile engine only ever searches and replaces whole playlists, so both providers expose the same two operations:
//   - [Catalog.SearchTracks] : free-text search mapped onto [models.CatalogCandidate]
//   - [PlaylistWriter.ReplacePlaylist] : find-or-create by name, then set the track list in order
//
// # Spotify Implementation
//
// [SpotifyService] wraps the zmb3/spotify client over an [oauth2.TokenSource] built from the configured access and refresh tokens.
// Expired access tokens are refreshed by the transport. Obtaining the first token is out of scope.
//
// # YouTube Music Implementation
//
// [YouTubeService] talks to the FastAPI proxy wrapping ytmusicapi.
// The headers file path is sent via the X-Auth-File header on each request.
//
// # Error Handling
//
// Failures are classified onto the shared taxonomy so the search scheduler can decide whether to retry:
//   - [*shared.AuthError] : 401 and 403, never retried
//   - [*shared.TransientError] : 429, 5xx and transport errors, with the Retry-After hint when present
//   - [shared.ErrPlaylistNotFound] : 404
//   - [shared.ErrAPIRequest] : any other unsuccessful status
package services
