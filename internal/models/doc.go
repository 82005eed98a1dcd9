// Package models defines domain entities and persistence interfaces for spotkit.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs the CLI and formatter work with
//   - [Playlist] : Basic playlist metadata
//   - [PlaylistExport] : Playlist with complete track listing
//   - [Track] : Song metadata with ISRC
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [Credential] : Spotify tokens kept between runs so the user does not re-authorize every time
//
// Persistent entities implement the Model interface providing ID, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
