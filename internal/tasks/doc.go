// Package tasks runs multi-request playlist operations against the Spotify Web API with progress reporting.
//
// # Core Operations
//
// [PlaylistEngine] provides:
//
//  1. [PlaylistEngine.BulkExport] : Export many playlists concurrently
//     - A bounded worker pool shares one client, so token renewal and 429 back-off are shared too
//     - Writes JSON, CSV, Markdown or text per playlist, plus export_manifest.json
//     - A failed playlist is recorded and the rest continue
//
//  2. [PlaylistEngine.Copy] and [PlaylistEngine.Import] : Recreate a playlist
//     - Copy resolves the source by ID, or by exact name among the user's playlists
//     - Import takes an export (e.g. a JSON backup) and searches for tracks without a Spotify URI
//
//  3. [PlaylistEngine.Diff] : Compare two playlists
//     - Matches tracks by URI, ISRC, then normalized title/artist
//     - Reports matched count, missing tracks, and extra tracks
//
//  4. [PlaylistEngine.Dump] : Fetch the user's library
//     - Profile, playlists, saved tracks and albums, followed artists, top items, recently played
//     - Endpoints whose scope was not granted are reported, not fatal
//
// # Progress Reporting
//
// All operations accept a channel of [ProgressUpdate]. Sends never block; when the channel is full the update is
// dropped.
package tasks
