package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/spotkit/internal/client"
	"github.com/desertthunder/spotkit/internal/shared"
)

// Batch limits of the several-items endpoints.
const (
	MaxTracksPerRequest  = 50
	MaxAlbumsPerRequest  = 20
	MaxArtistsPerRequest = 50
	MaxPageLimit         = 50
)

// SearchType is one of the item types accepted by the search endpoint.
type SearchType string

const (
	SearchTrack    SearchType = "track"
	SearchArtist   SearchType = "artist"
	SearchAlbum    SearchType = "album"
	SearchPlaylist SearchType = "playlist"
)

// ParseSearchTypes reads a comma separated list such as "track,album".
func ParseSearchTypes(s string) ([]SearchType, error) {
	var types []SearchType
	for _, part := range strings.Split(s, ",") {
		switch t := SearchType(strings.TrimSpace(strings.ToLower(part))); t {
		case "":
		case SearchTrack, SearchArtist, SearchAlbum, SearchPlaylist:
			types = append(types, t)
		default:
			return nil, fmt.Errorf("%w: unknown search type %q", shared.ErrInvalidArgument, part)
		}
	}
	return types, nil
}

// PageOptions select a page and an optional market (ISO 3166-1 alpha-2 country code, or "from_token").
type PageOptions struct {
	Limit  int
	Offset int
	Market string
}

func (o PageOptions) values() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(min(o.Limit, MaxPageLimit)))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.Market != "" {
		q.Set("market", o.Market)
	}
	return q
}

func marketQuery(market string) url.Values {
	return PageOptions{Market: market}.values()
}

// CatalogService reads public catalog data. It needs no user scopes.
type CatalogService struct {
	doer client.Doer
}

func NewCatalogService(doer client.Doer) *CatalogService {
	return &CatalogService{doer: doer}
}

// Track retrieves a single track by ID.
func (c *CatalogService) Track(ctx context.Context, id, market string) (*SpotifyTrack, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}
	var track SpotifyTrack
	if err := c.doer.Do(ctx, client.Get("tracks/"+url.PathEscape(id), marketQuery(market)), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// Tracks retrieves up to [MaxTracksPerRequest] tracks. IDs Spotify does not know are left out of the result.
func (c *CatalogService) Tracks(ctx context.Context, ids []string, market string) ([]SpotifyTrack, error) {
	q, err := idsQuery(ids, MaxTracksPerRequest, "track")
	if err != nil {
		return nil, err
	}
	if market != "" {
		q.Set("market", market)
	}

	var response struct {
		Tracks []*SpotifyTrack `json:"tracks"`
	}
	if err := c.doer.Do(ctx, client.Get("tracks", q), &response); err != nil {
		return nil, err
	}
	return compact(response.Tracks), nil
}

// Album retrieves an album with its first page of tracks.
func (c *CatalogService) Album(ctx context.Context, id, market string) (*SpotifyAlbum, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}
	var album SpotifyAlbum
	if err := c.doer.Do(ctx, client.Get("albums/"+url.PathEscape(id), marketQuery(market)), &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// Albums retrieves up to [MaxAlbumsPerRequest] albums.
func (c *CatalogService) Albums(ctx context.Context, ids []string, market string) ([]SpotifyAlbum, error) {
	q, err := idsQuery(ids, MaxAlbumsPerRequest, "album")
	if err != nil {
		return nil, err
	}
	if market != "" {
		q.Set("market", market)
	}

	var response struct {
		Albums []*SpotifyAlbum `json:"albums"`
	}
	if err := c.doer.Do(ctx, client.Get("albums", q), &response); err != nil {
		return nil, err
	}
	return compact(response.Albums), nil
}

// AlbumTracks pages through an album's tracks.
func (c *CatalogService) AlbumTracks(ctx context.Context, id string, opts PageOptions) (*Paging[SpotifyTrack], error) {
	if id == "" {
		return nil, fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}
	var page Paging[SpotifyTrack]
	if err := c.doer.Do(ctx, client.Get("albums/"+url.PathEscape(id)+"/tracks", opts.values()), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Artist retrieves a full artist by ID.
func (c *CatalogService) Artist(ctx context.Context, id string) (*SpotifyArtist, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}
	var artist SpotifyArtist
	if err := c.doer.Do(ctx, client.Get("artists/"+url.PathEscape(id), nil), &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// Artists retrieves up to [MaxArtistsPerRequest] artists.
func (c *CatalogService) Artists(ctx context.Context, ids []string) ([]SpotifyArtist, error) {
	q, err := idsQuery(ids, MaxArtistsPerRequest, "artist")
	if err != nil {
		return nil, err
	}

	var response struct {
		Artists []*SpotifyArtist `json:"artists"`
	}
	if err := c.doer.Do(ctx, client.Get("artists", q), &response); err != nil {
		return nil, err
	}
	return compact(response.Artists), nil
}

// ArtistAlbums pages through an artist's releases. groups filters by album, single, appears_on or compilation.
func (c *CatalogService) ArtistAlbums(ctx context.Context, id string, groups []string, opts PageOptions) (*Paging[SpotifyAlbum], error) {
	if id == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}
	q := opts.values()
	if len(groups) > 0 {
		q.Set("include_groups", strings.Join(groups, ","))
	}

	var page Paging[SpotifyAlbum]
	if err := c.doer.Do(ctx, client.Get("artists/"+url.PathEscape(id)+"/albums", q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ArtistTopTracks retrieves an artist's most popular tracks in market.
func (c *CatalogService) ArtistTopTracks(ctx context.Context, id, market string) ([]SpotifyTrack, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}
	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := c.doer.Do(ctx, client.Get("artists/"+url.PathEscape(id)+"/top-tracks", marketQuery(market)), &response); err != nil {
		return nil, err
	}
	return response.Tracks, nil
}

// Search queries the catalog. Without types only tracks are searched.
func (c *CatalogService) Search(ctx context.Context, query string, types []SearchType, opts PageOptions) (*SearchResults, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	if len(types) == 0 {
		types = []SearchType{SearchTrack}
	}

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	q := opts.values()
	q.Set("q", query)
	q.Set("type", strings.Join(names, ","))

	var results SearchResults
	if err := c.doer.Do(ctx, client.Get("search", q), &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// NextPage follows page's next cursor. It returns nil, nil on the last page.
func NextPage[T any](ctx context.Context, doer client.Doer, page *Paging[T], scopes ...string) (*Paging[T], error) {
	if !page.HasNext() {
		return nil, nil
	}
	var next Paging[T]
	if err := doer.Do(ctx, client.Get(*page.Next, nil, scopes...), &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// AllPages collects the items of first and every page after it.
func AllPages[T any](ctx context.Context, doer client.Doer, first *Paging[T], scopes ...string) ([]T, error) {
	var items []T
	for page := first; page != nil; {
		items = append(items, page.Items...)
		next, err := NextPage(ctx, doer, page, scopes...)
		if err != nil {
			return nil, err
		}
		page = next
	}
	return items, nil
}

func idsQuery(ids []string, limit int, kind string) (url.Values, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no %s IDs provided", shared.ErrMissingArgument, kind)
	}
	if len(ids) > limit {
		return nil, fmt.Errorf("%w: maximum %d %s IDs allowed, got %d", shared.ErrInvalidArgument, limit, kind, len(ids))
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	return q, nil
}

// compact drops the null entries Spotify returns for unknown IDs.
func compact[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, *it)
		}
	}
	return out
}
