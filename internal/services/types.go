// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import "fmt"

type followers struct {
	Total int `json:"total"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
	UPC  string `json:"upc,omitempty"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// ArtistKind tells how much of an artist object Spotify returned.
type ArtistKind int

const (
	// ArtistLocal only has a name; it comes from a local file in a playlist.
	ArtistLocal ArtistKind = iota
	// ArtistPartial is the simplified object embedded in tracks and albums.
	ArtistPartial
	// ArtistFull is the object returned by the artist endpoints.
	ArtistFull
)

func (k ArtistKind) String() string {
	switch k {
	case ArtistFull:
		return "full"
	case ArtistPartial:
		return "partial"
	default:
		return "local"
	}
}

// SpotifyArtist represents a Spotify artist. Which fields are set depends on [SpotifyArtist.Kind].
type SpotifyArtist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	URI          string            `json:"uri"`
	ExternalURLs map[string]string `json:"external_urls"`
	Genres       []string          `json:"genres"`
	Images       []SpotifyImage    `json:"images"`
	Popularity   *int              `json:"popularity"`
	Followers    *followers        `json:"followers"`
}

// Kind derives the artist variant from the fields present: an ID makes it at least partial, and genres, images and
// popularity together make it full.
func (a SpotifyArtist) Kind() ArtistKind {
	switch {
	case a.ID == "":
		return ArtistLocal
	case a.Genres != nil && a.Images != nil && a.Popularity != nil:
		return ArtistFull
	default:
		return ArtistPartial
	}
}

// SpotifyAlbum represents a Spotify album. Tracks is only present on the album endpoints.
type SpotifyAlbum struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	AlbumType   string                `json:"album_type"`
	Artists     []SpotifyArtist       `json:"artists"`
	ReleaseDate string                `json:"release_date"`
	TotalTracks int                   `json:"total_tracks"`
	Images      []SpotifyImage        `json:"images"`
	Label       string                `json:"label,omitempty"`
	ExternalIDs externalIDs           `json:"external_ids"`
	Tracks      *Paging[SpotifyTrack] `json:"tracks,omitempty"`
	URI         string                `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	TrackNumber int             `json:"track_number"`
	IsLocal     bool            `json:"is_local"`
	IsPlayable  *bool           `json:"is_playable,omitempty"`
	URI         string          `json:"uri"`
}

// ArtistNames joins the track's artists for display.
func (t SpotifyTrack) ArtistNames() string {
	switch len(t.Artists) {
	case 0:
		return ""
	case 1:
		return t.Artists[0].Name
	}
	names := t.Artists[0].Name
	for _, a := range t.Artists[1:] {
		names += ", " + a.Name
	}
	return names
}

func (t SpotifyTrack) String() string {
	return fmt.Sprintf("%s - %s (%s)", t.Name, t.ArtistNames(), t.Album.Name)
}

// Paging is Spotify's page envelope. Next is an absolute URL on the API host, or nil on the last page.
type Paging[T any] struct {
	Href     string  `json:"href"`
	Items    []T     `json:"items"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Total    int     `json:"total"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// HasNext reports whether another page follows.
func (p *Paging[T]) HasNext() bool {
	return p != nil && p.Next != nil && *p.Next != ""
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylist represents a full Spotify playlist including its first page of tracks.
type SpotifyPlaylist struct {
	ID            string                       `json:"id"`
	Name          string                       `json:"name"`
	Description   string                       `json:"description"`
	Owner         Owner                        `json:"owner"`
	Public        bool                         `json:"public"`
	Collaborative bool                         `json:"collaborative"`
	SnapshotID    string                       `json:"snapshot_id"`
	Tracks        Paging[SpotifyPlaylistTrack] `json:"tracks"`
	Images        []SpotifyImage               `json:"images"`
	URI           string                       `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed or unavailable items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
	URI         string              `json:"uri"`
}

// SearchResults holds one page per requested search type. Types that were not requested stay nil.
type SearchResults struct {
	Tracks    *Paging[SpotifyTrack]           `json:"tracks,omitempty"`
	Artists   *Paging[SpotifyArtist]          `json:"artists,omitempty"`
	Albums    *Paging[SpotifyAlbum]           `json:"albums,omitempty"`
	Playlists *Paging[*SpotifySimplePlaylist] `json:"playlists,omitempty"`
}

// SpotifyDevice is a Spotify Connect device.
type SpotifyDevice struct {
	ID            string `json:"id"`
	IsActive      bool   `json:"is_active"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	VolumePercent *int   `json:"volume_percent"`
}

// PlaybackState is the user's current playback. Item is nil when an ad or episode is playing.
type PlaybackState struct {
	Device               SpotifyDevice `json:"device"`
	ShuffleState         bool          `json:"shuffle_state"`
	RepeatState          string        `json:"repeat_state"`
	Timestamp            int64         `json:"timestamp"`
	ProgressMS           int           `json:"progress_ms"`
	IsPlaying            bool          `json:"is_playing"`
	Item                 *SpotifyTrack `json:"item"`
	CurrentlyPlayingType string        `json:"currently_playing_type"`
}

// PlaybackQueue is the currently playing track followed by what is queued.
type PlaybackQueue struct {
	CurrentlyPlaying *SpotifyTrack  `json:"currently_playing"`
	Queue            []SpotifyTrack `json:"queue"`
}
