// Package repositories persists Spotify credentials between runs.
//
// Key Implementations:
//   - [CredentialRepository] : SQLite persistence implementing models.Repository for [models.Credential]
//   - [CredentialStore] : adapts a CredentialRepository to auth.Store so the token manager can save renewals
//   - [RedisCredentialStore] : auth.Store backed by Redis, for several processes sharing one Spotify login
//
// [NewStore] picks the backend named in the [storage] config section.
package repositories
