package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/client"
	"github.com/desertthunder/spotkit/internal/models"
	"github.com/desertthunder/spotkit/internal/shared"
)

// MaxItemsPerPlaylistWrite is the most URIs one add-items call accepts.
const MaxItemsPerPlaylistWrite = 100

// authenticator is satisfied by [client.UserClient].
type authenticator interface {
	CompleteAuthorization(ctx context.Context, consent client.Consent, code string) (*auth.Token, error)
	Tokens() *auth.Manager
}

// SpotifyService implements [Service] for the current Spotify user and exposes the user-scoped endpoints.
type SpotifyService struct {
	*CatalogService
	doer client.Doer
}

// NewSpotifyService wraps a user-capable client, normally a [client.UserClient].
func NewSpotifyService(doer client.Doer) *SpotifyService {
	return &SpotifyService{CatalogService: NewCatalogService(doer), doer: doer}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Authenticate completes a login obtained outside the CLI. An "auth_code" is exchanged (with "code_verifier" under
// PKCE); otherwise a "refresh_token" seeds the token manager and is renewed on first use.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	a, ok := s.doer.(authenticator)
	if !ok {
		return fmt.Errorf("%w: client cannot act for a user", shared.ErrInvalidConfig)
	}

	if code := credentials["auth_code"]; code != "" {
		_, err := a.CompleteAuthorization(ctx, client.Consent{Verifier: credentials["code_verifier"]}, code)
		return err
	}

	if refresh := credentials["refresh_token"]; refresh != "" {
		scopes := auth.ParseScopes(credentials["scope"])
		if scopes.Len() == 0 {
			scopes = a.Tokens().Flow().Requested()
		}
		a.Tokens().Install(ctx, auth.NewRefreshOnly(refresh, scopes))
		return nil
	}

	return fmt.Errorf("%w: auth_code or refresh_token", shared.ErrMissingCredentials)
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doer.Do(ctx, client.Get("me", nil, auth.ScopeUserReadPrivate), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SavedTracks retrieves a page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, opts PageOptions) (*Paging[SpotifySavedTrack], error) {
	var page Paging[SpotifySavedTrack]
	if err := s.doer.Do(ctx, client.Get("me/tracks", opts.values(), auth.ScopeUserLibraryRead), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UserPlaylists retrieves a page of the current user's playlists.
func (s *SpotifyService) UserPlaylists(ctx context.Context, opts PageOptions) (*Paging[SpotifySimplePlaylist], error) {
	var page Paging[SpotifySimplePlaylist]
	if err := s.doer.Do(ctx, client.Get("me/playlists", opts.values(), auth.ScopePlaylistReadPrivate), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Playlist retrieves a playlist with its first page of items.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var playlist SpotifyPlaylist
	err := s.doer.Do(ctx, client.Get("playlists/"+url.PathEscape(playlistID), nil), &playlist)
	if err != nil {
		var apiErr *shared.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s: %w", shared.ErrPlaylistNotFound, playlistID, err)
		}
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks retrieves one page of a playlist's items. Follow [Paging.Next] with [NextPage].
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, opts PageOptions) (*Paging[SpotifyPlaylistTrack], error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	var page Paging[SpotifyPlaylistTrack]
	path := "playlists/" + url.PathEscape(playlistID) + "/tracks"
	if err := s.doer.Do(ctx, client.Get(path, opts.values()), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PlaylistCoverURL returns the URL of the largest cover image of a playlist, or "" when it has none.
func (s *SpotifyService) PlaylistCoverURL(ctx context.Context, playlistID string) (string, error) {
	if playlistID == "" {
		return "", fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	var images []SpotifyImage
	if err := s.doer.Do(ctx, client.Get("playlists/"+url.PathEscape(playlistID)+"/images", nil), &images); err != nil {
		return "", err
	}

	best := ""
	size := -1
	for _, img := range images {
		if img.Width*img.Height > size {
			best, size = img.URL, img.Width*img.Height
		}
	}
	return best, nil
}

// CreatePlaylist creates a playlist owned by userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*SpotifyPlaylist, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user id and playlist name", shared.ErrMissingArgument)
	}

	scope := auth.ScopePlaylistModifyPrivate
	if public {
		scope = auth.ScopePlaylistModifyPublic
	}
	body := map[string]any{"name": name, "description": description, "public": public}
	req, err := client.JSON(http.MethodPost, "users/"+url.PathEscape(userID)+"/playlists", body, scope)
	if err != nil {
		return nil, err
	}

	var playlist SpotifyPlaylist
	if err := s.doer.Do(ctx, req, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracksToPlaylist appends uris in batches of [MaxItemsPerPlaylistWrite] and returns the last snapshot ID.
func (s *SpotifyService) AddTracksToPlaylist(ctx context.Context, playlistID string, uris []string) (string, error) {
	if playlistID == "" {
		return "", fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var snapshot string
	path := "playlists/" + url.PathEscape(playlistID) + "/tracks"
	for start := 0; start < len(uris); start += MaxItemsPerPlaylistWrite {
		end := min(start+MaxItemsPerPlaylistWrite, len(uris))
		req, err := client.JSON(http.MethodPost, path, map[string]any{"uris": uris[start:end]},
			auth.ScopePlaylistModifyPrivate)
		if err != nil {
			return "", err
		}

		var response struct {
			SnapshotID string `json:"snapshot_id"`
		}
		if err := s.doer.Do(ctx, req, &response); err != nil {
			return snapshot, err
		}
		snapshot = response.SnapshotID
	}
	return snapshot, nil
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	first, err := s.UserPlaylists(ctx, PageOptions{Limit: MaxPageLimit})
	if err != nil {
		return nil, err
	}
	items, err := AllPages(ctx, s.doer, first, auth.ScopePlaylistReadPrivate)
	if err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, 0, len(items))
	for _, sp := range items {
		playlists = append(playlists, models.Playlist{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			Owner:       sp.Owner.DisplayName,
			TrackCount:  sp.Tracks.Total,
			Public:      sp.Public,
		})
	}
	return playlists, nil
}

// GetPlaylist retrieves a specific playlist by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	playlist := toPlaylist(sp)
	return &playlist, nil
}

// ExportPlaylist exports a playlist with all its tracks, following every page of items.
func (s *SpotifyService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	items, err := AllPages(ctx, s.doer, &sp.Tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to page playlist %s: %w", playlistID, err)
	}

	tracks := make([]models.Track, 0, len(items))
	for _, item := range items {
		if item.Track == nil {
			continue
		}
		tracks = append(tracks, toTrack(*item.Track))
	}

	return &models.PlaylistExport{Playlist: toPlaylist(sp), Tracks: tracks}, nil
}

// ImportPlaylist creates a private playlist for the current user and adds every track that carries a Spotify URI
// or can be found by search.
func (s *SpotifyService) ImportPlaylist(ctx context.Context, export *models.PlaylistExport) (*models.Playlist, error) {
	if export == nil {
		return nil, fmt.Errorf("%w: playlist export", shared.ErrMissingArgument)
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	created, err := s.CreatePlaylist(ctx, user.ID, export.Playlist.Name, export.Playlist.Description, false)
	if err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(export.Tracks))
	for _, t := range export.Tracks {
		if strings.HasPrefix(t.URI, "spotify:track:") {
			uris = append(uris, t.URI)
			continue
		}
		match, err := s.SearchTrack(ctx, t.Title, t.Artist)
		if errors.Is(err, shared.ErrTrackNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		uris = append(uris, match.URI)
	}

	if len(uris) > 0 {
		if _, err := s.AddTracksToPlaylist(ctx, created.ID, uris); err != nil {
			return nil, err
		}
	}

	playlist := toPlaylist(created)
	playlist.TrackCount = len(uris)
	return &playlist, nil
}

// SearchTrack searches for a track by title and artist and returns the best match.
func (s *SpotifyService) SearchTrack(ctx context.Context, title, artist string) (*models.Track, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: track title", shared.ErrMissingArgument)
	}

	query := "track:" + title
	if artist != "" {
		query += " artist:" + artist
	}
	results, err := s.Search(ctx, query, []SearchType{SearchTrack}, PageOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if results.Tracks == nil || len(results.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, strconv.Quote(query))
	}

	track := toTrack(results.Tracks.Items[0])
	return &track, nil
}

func toPlaylist(sp *SpotifyPlaylist) models.Playlist {
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		Owner:       sp.Owner.DisplayName,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public,
	}
}

func toTrack(t SpotifyTrack) models.Track {
	track := models.Track{
		ID:       t.ID,
		Title:    t.Name,
		Album:    t.Album.Name,
		Duration: t.DurationMS / 1000,
		ISRC:     t.ExternalIDs.ISRC,
		URI:      t.URI,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}
