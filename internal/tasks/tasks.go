package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotkit/internal/models"
	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
)

// TrackMatchResult represents the result of resolving a single track to a playable Spotify URI.
type TrackMatchResult struct {
	Original models.Track  // Original track from source
	Matched  *models.Track // Matched track (nil if not found)
	Error    error         // Error if match failed
}

// CopyResult contains all data from a copy or import operation.
type CopyResult struct {
	SourcePlaylist  *models.PlaylistExport // Source playlist with tracks
	DestPlaylist    *models.Playlist       // Created destination playlist
	TrackMatches    []TrackMatchResult     // Individual track match results
	SuccessCount    int                    // Number of resolved tracks
	FailedCount     int                    // Number of unresolved tracks
	TotalTracks     int                    // Total tracks processed
	MatchPercentage float64                // Success rate as percentage
}

// ComparisonResult contains track comparison details between two playlists.
type ComparisonResult struct {
	SourcePlaylist *models.PlaylistExport // Source playlist
	DestPlaylist   *models.PlaylistExport // Destination playlist
	MatchedCount   int                    // Tracks found in both
	MissingInDest  []models.Track         // Tracks in source but not in dest
	ExtraInDest    []models.Track         // Tracks in dest but not in source
}

// EndpointResult represents the result of fetching data from a single API endpoint.
type EndpointResult struct {
	Endpoint string
	Data     any
	Error    error
}

// DumpResult contains the user's library as returned by the Web API.
type DumpResult struct {
	Profile         any              // Current user profile
	Playlists       any              // First page of the user's playlists
	SavedTracks     any              // Liked songs
	SavedAlbums     any              // Saved albums
	FollowedArtists any              // Followed artists
	TopTracks       any              // Top tracks, medium term
	TopArtists      any              // Top artists, medium term
	RecentlyPlayed  any              // Recently played tracks
	Errors          []EndpointResult // Failed endpoint fetches
}

// DumpData is the JSON shape written by dump.
type DumpData struct {
	Profile         any         `json:"profile"`
	Playlists       any         `json:"playlists,omitempty"`
	SavedTracks     any         `json:"saved_tracks,omitempty"`
	SavedAlbums     any         `json:"saved_albums,omitempty"`
	FollowedArtists any         `json:"followed_artists,omitempty"`
	TopTracks       any         `json:"top_tracks,omitempty"`
	TopArtists      any         `json:"top_artists,omitempty"`
	RecentlyPlayed  any         `json:"recently_played,omitempty"`
	Errors          []DumpError `json:"errors,omitempty"`
}

type DumpError struct {
	Endpoint string `json:"endpoint"`
	Error    string `json:"error"`
}

// Data converts the result for serialization.
func (r *DumpResult) Data() DumpData {
	d := DumpData{
		Profile:         r.Profile,
		Playlists:       r.Playlists,
		SavedTracks:     r.SavedTracks,
		SavedAlbums:     r.SavedAlbums,
		FollowedArtists: r.FollowedArtists,
		TopTracks:       r.TopTracks,
		TopArtists:      r.TopArtists,
		RecentlyPlayed:  r.RecentlyPlayed,
	}
	for _, e := range r.Errors {
		d.Errors = append(d.Errors, DumpError{Endpoint: e.Endpoint, Error: e.Error.Error()})
	}
	return d
}

type endpointOperation struct {
	name    string
	path    string
	query   url.Values
	scope   string
	target  *any
	phase   Phase
	message string
}

// PlaylistEngine runs multi-request playlist operations against Spotify and reports progress on a channel.
type PlaylistEngine struct {
	spotify services.Service
	api     APIClient
	logger  *log.Logger
}

// APIClient defines the interface for raw authorized Web API requests.
type APIClient interface {
	Get(ctx context.Context, path string, query url.Values, scopes ...string) (*services.APIResponse, error)
}

// NewPlaylistEngine creates a new PlaylistEngine. A nil logger discards output.
func NewPlaylistEngine(spotify services.Service, api APIClient, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &PlaylistEngine{spotify: spotify, api: api, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// resolvePlaylist exports idOrName, falling back to a lookup by exact name among the user's playlists when the API
// rejects it as an ID.
func (e *PlaylistEngine) resolvePlaylist(ctx context.Context, idOrName string) (*models.PlaylistExport, error) {
	export, err := e.spotify.ExportPlaylist(ctx, idOrName)
	if err == nil {
		return export, nil
	}
	if !errors.Is(err, shared.ErrPlaylistNotFound) && !errors.Is(err, shared.ErrAPIRequest) {
		return nil, err
	}

	playlists, listErr := e.spotify.GetPlaylists(ctx)
	if listErr != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", listErr)
	}
	for _, pl := range playlists {
		if pl.Name == idOrName {
			return e.spotify.ExportPlaylist(ctx, pl.ID)
		}
	}
	return nil, fmt.Errorf("%w: no playlist with ID or name '%s'", shared.ErrPlaylistNotFound, idOrName)
}

// Copy duplicates a playlist, given by ID or name, into a new private playlist named destName
// (default "{source} (copy)").
func (e *PlaylistEngine) Copy(ctx context.Context, progress chan<- ProgressUpdate, sourceIDOrName, destName string) (*CopyResult, error) {
	if e.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, fetchingSourceUpdate(1, 1))
	src, err := e.resolvePlaylist(ctx, sourceIDOrName)
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, foundPlaylistUpdate(1, 1, src))

	if destName == "" {
		destName = src.Playlist.Name + " (copy)"
	}
	return e.Import(ctx, progress, src, destName)
}

// Import recreates src as a new private playlist named destName (default: the source name). Tracks that carry a
// Spotify track URI are used as-is; the rest are searched for by title and artist.
func (e *PlaylistEngine) Import(ctx context.Context, progress chan<- ProgressUpdate, src *models.PlaylistExport, destName string) (*CopyResult, error) {
	if e.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: source playlist", shared.ErrMissingArgument)
	}
	if destName == "" {
		destName = src.Playlist.Name
	}

	total := len(src.Tracks)
	result := &CopyResult{SourcePlaylist: src, TotalTracks: total}
	matches := make([]TrackMatchResult, total)

	e.sendProgress(progress, searchTracksUpdate(0, total, nil))
	for i, track := range src.Tracks {
		e.sendProgress(progress, searchTracksUpdate(i+1, total, &track))

		if strings.HasPrefix(track.URI, "spotify:track:") {
			matches[i] = TrackMatchResult{Original: track, Matched: &track}
		} else {
			found, err := e.spotify.SearchTrack(ctx, track.Title, track.Artist)
			matches[i] = TrackMatchResult{Original: track, Matched: found, Error: err}
			if err != nil {
				e.logger.Debug("track not resolved", "title", track.Title, "artist", track.Artist, "err", err)
			}
		}

		if matches[i].Error == nil && matches[i].Matched != nil {
			result.SuccessCount++
		}
	}

	result.TrackMatches = matches
	result.FailedCount = total - result.SuccessCount
	if total > 0 {
		result.MatchPercentage = float64(result.SuccessCount) / float64(total) * 100
	}

	if result.SuccessCount == 0 {
		return result, fmt.Errorf("%w: no tracks were matched, refusing to create an empty playlist", shared.ErrTrackNotFound)
	}

	e.sendProgress(progress, createDestinationUpdate(1, 1, destName))

	resolved := make([]models.Track, 0, result.SuccessCount)
	for _, m := range matches {
		if m.Error == nil && m.Matched != nil {
			resolved = append(resolved, *m.Matched)
		}
	}
	dest := &models.PlaylistExport{
		Playlist: models.Playlist{
			Name:        destName,
			Description: fmt.Sprintf("Copied from %s", src.Playlist.Name),
		},
		Tracks: resolved,
	}

	created, err := e.spotify.ImportPlaylist(ctx, dest)
	if err != nil {
		return result, fmt.Errorf("failed to create playlist: %w", err)
	}

	result.DestPlaylist = created
	e.sendProgress(progress, createPlaylistUpdate(1, 1, created))
	return result, nil
}

// Diff compares two playlists by ID.
func (e *PlaylistEngine) Diff(ctx context.Context, progress chan<- ProgressUpdate, sourceID, destID string) (*ComparisonResult, error) {
	if e.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, fetchSourceUpdate(1, 2, sourceID))
	src, err := e.spotify.ExportPlaylist(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to export source playlist: %w", err)
	}

	e.sendProgress(progress, fetchDestUpdate(2, 2, destID))
	dest, err := e.spotify.ExportPlaylist(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("failed to export destination playlist: %w", err)
	}

	e.sendProgress(progress, compareUpdate(1, 1))
	result := CompareExports(src, dest)
	return &result, nil
}

// trackIndex answers whether a track is present by URI, ISRC or normalized title and artist.
type trackIndex struct {
	uris  map[string]struct{}
	isrcs map[string]struct{}
	keys  map[string]struct{}
}

func newTrackIndex(tracks []models.Track) trackIndex {
	idx := trackIndex{
		uris:  make(map[string]struct{}, len(tracks)),
		isrcs: make(map[string]struct{}, len(tracks)),
		keys:  make(map[string]struct{}, len(tracks)),
	}
	for _, t := range tracks {
		if t.URI != "" {
			idx.uris[t.URI] = struct{}{}
		}
		if t.ISRC != "" {
			idx.isrcs[t.ISRC] = struct{}{}
		}
		idx.keys[shared.NormalizeTrackKey(t.Title, t.Artist)] = struct{}{}
	}
	return idx
}

func (idx trackIndex) contains(t models.Track) bool {
	if _, ok := idx.uris[t.URI]; ok && t.URI != "" {
		return true
	}
	if _, ok := idx.isrcs[t.ISRC]; ok && t.ISRC != "" {
		return true
	}
	_, ok := idx.keys[shared.NormalizeTrackKey(t.Title, t.Artist)]
	return ok
}

// CompareExports matches the tracks of two exports by URI, then ISRC, then normalized title and artist.
func CompareExports(src, dest *models.PlaylistExport) ComparisonResult {
	result := ComparisonResult{SourcePlaylist: src, DestPlaylist: dest}

	destIdx := newTrackIndex(dest.Tracks)
	for _, t := range src.Tracks {
		if destIdx.contains(t) {
			result.MatchedCount++
		} else {
			result.MissingInDest = append(result.MissingInDest, t)
		}
	}

	srcIdx := newTrackIndex(src.Tracks)
	for _, t := range dest.Tracks {
		if !srcIdx.contains(t) {
			result.ExtraInDest = append(result.ExtraInDest, t)
		}
	}
	return result
}

// Dump fetches the user's library. Endpoints that fail, including those whose scope was not granted, are recorded in
// Errors and the rest still run.
func (e *PlaylistEngine) Dump(ctx context.Context, progress chan<- ProgressUpdate) (*DumpResult, error) {
	if e.api == nil {
		return nil, fmt.Errorf("%w: API client not initialized", shared.ErrServiceUnavailable)
	}

	result := &DumpResult{Errors: []EndpointResult{}}
	page := url.Values{"limit": {"50"}}

	endpoints := []endpointOperation{
		{name: "profile", path: "me", scope: "user-read-private", target: &result.Profile, phase: FetchProfile, message: "Fetching profile..."},
		{name: "playlists", path: "me/playlists", query: page, scope: "playlist-read-private", target: &result.Playlists, phase: FetchPlaylists, message: "Fetching playlists..."},
		{name: "saved_tracks", path: "me/tracks", query: page, scope: "user-library-read", target: &result.SavedTracks, phase: FetchSavedTracks, message: "Fetching liked songs..."},
		{name: "saved_albums", path: "me/albums", query: page, scope: "user-library-read", target: &result.SavedAlbums, phase: FetchSavedAlbums, message: "Fetching saved albums..."},
		{name: "followed_artists", path: "me/following", query: url.Values{"type": {"artist"}, "limit": {"50"}}, scope: "user-follow-read", target: &result.FollowedArtists, phase: FetchFollowing, message: "Fetching followed artists..."},
		{name: "top_tracks", path: "me/top/tracks", query: page, scope: "user-top-read", target: &result.TopTracks, phase: FetchTop, message: "Fetching top tracks..."},
		{name: "top_artists", path: "me/top/artists", query: page, scope: "user-top-read", target: &result.TopArtists, phase: FetchTop, message: "Fetching top artists..."},
		{name: "recently_played", path: "me/player/recently-played", query: page, scope: "user-read-recently-played", target: &result.RecentlyPlayed, phase: FetchRecent, message: "Fetching recently played..."},
	}

	totalSteps := len(endpoints)

	for i, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		e.sendProgress(progress, operationUpdate(endpoint, i+1, totalSteps))

		resp, err := e.api.Get(ctx, endpoint.path, endpoint.query, endpoint.scope)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, EndpointResult{Endpoint: endpoint.path, Error: err})
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			result.Errors = append(result.Errors, EndpointResult{
				Endpoint: endpoint.path,
				Error:    fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode),
			})
		default:
			*endpoint.target = resp.JSONData
		}

		if n := len(result.Errors); n > 0 && result.Errors[n-1].Endpoint == endpoint.path {
			e.logger.Warn("dump endpoint failed", "endpoint", endpoint.name, "err", result.Errors[n-1].Error)
		}
	}

	return result, nil
}
