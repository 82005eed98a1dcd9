// Package services maps Spotify Web API endpoints onto typed Go calls.
//
// Every call goes through a [client.Doer], so authorization, 401 recovery and rate limiting are handled by the
// request executor and never seen here.
//
// # Catalog
//
// [CatalogService] covers endpoints that need no user context (tracks, albums, artists, search). It works with both
// the application-only and the user clients.
//
// # User
//
// [SpotifyService] adds the profile, library, playlist and player endpoints and implements [Service] with
// models.Playlist and models.Track as the provider-neutral shapes. Endpoints declare the scopes they need, so a
// call the current token cannot satisfy fails with [shared.ErrMissingScope] before anything is sent.
//
// # Raw access
//
// [APIService] sends arbitrary authorized requests and returns the raw response, for the `api` command.
//
// # Error Handling
//
// Errors come from the executor unchanged:
//   - [shared.APIError] : non-success status, with Spotify's message
//   - [shared.AuthorizationError] : the token was rejected twice or could not be renewed
//   - [shared.TransportError] : network failure
//   - [shared.ErrDeserialize] : the body did not match the expected shape
package services
