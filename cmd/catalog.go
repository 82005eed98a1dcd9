package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
)

// Track looks up one track, or up to 50 in one request.
func (r *Runner) Track(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one track ID", shared.ErrMissingArgument)
	}

	doer, closer, err := r.catalogDoer(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	tracks, err := services.NewCatalogService(doer).Tracks(ctx, ids, cmd.String("market"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}

	for i, t := range tracks {
		r.writePlain("%d. %s\n", i+1, r.palette.Title(t.Name))
		r.writeTrackFields(t)
		r.writePlain("\n")
	}
	if missing := len(ids) - len(tracks); missing > 0 {
		r.writePlain("%s\n", r.palette.Warn(fmt.Sprintf("%d ID(s) not found", missing)))
	}
	return nil
}

func (r *Runner) writeTrackFields(t services.SpotifyTrack) {
	r.writePlain("%s\n", r.palette.Field("Artist", t.ArtistNames()))
	r.writePlain("%s\n", r.palette.Field("Album", t.Album.Name))
	r.writePlain("%s\n", r.palette.Field("Duration", shared.FormatDuration(t.DurationMS/1000)))
	if t.ExternalIDs.ISRC != "" {
		r.writePlain("%s\n", r.palette.Field("ISRC", t.ExternalIDs.ISRC))
	}
	r.writePlain("%s\n", r.palette.Field("URI", t.URI))
}

// Album shows an album and every one of its tracks.
func (r *Runner) Album(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: album ID", shared.ErrMissingArgument)
	}

	doer, closer, err := r.catalogDoer(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	album, err := services.NewCatalogService(doer).Album(ctx, id, cmd.String("market"))
	if err != nil {
		return err
	}

	tracks, err := services.AllPages(ctx, doer, album.Tracks)
	if err != nil {
		return fmt.Errorf("failed to page album tracks: %w", err)
	}

	if cmd.Bool("json") {
		album.Tracks = nil
		return r.writeJSON(struct {
			*services.SpotifyAlbum
			Tracks []services.SpotifyTrack `json:"tracks"`
		}{album, tracks}, true)
	}

	r.writePlainHeader(album.Name)
	artists := make([]string, len(album.Artists))
	for i, a := range album.Artists {
		artists[i] = a.Name
	}
	r.writePlain("%s\n", r.palette.Field("Artist", strings.Join(artists, ", ")))
	r.writePlain("%s\n", r.palette.Field("Type", album.AlbumType))
	r.writePlain("%s\n", r.palette.Field("Released", album.ReleaseDate))
	if album.Label != "" {
		r.writePlain("%s\n", r.palette.Field("Label", album.Label))
	}
	r.writePlain("%s\n\n", r.palette.Field("Tracks", album.TotalTracks))

	for _, t := range tracks {
		r.writePlain("%2d. %s [%s]\n", t.TrackNumber, t.Name, shared.FormatDuration(t.DurationMS/1000))
	}
	return nil
}

// Artist shows an artist and, on request, their top tracks and releases.
func (r *Runner) Artist(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: artist ID", shared.ErrMissingArgument)
	}

	doer, closer, err := r.catalogDoer(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	catalog := services.NewCatalogService(doer)
	artist, err := catalog.Artist(ctx, id)
	if err != nil {
		return err
	}

	out := struct {
		Artist    *services.SpotifyArtist `json:"artist"`
		TopTracks []services.SpotifyTrack `json:"top_tracks,omitempty"`
		Albums    []services.SpotifyAlbum `json:"albums,omitempty"`
	}{Artist: artist}

	market := cmd.String("market")
	if cmd.Bool("top") {
		topMarket := market
		if topMarket == "" {
			topMarket = "US"
		}
		if out.TopTracks, err = catalog.ArtistTopTracks(ctx, id, topMarket); err != nil {
			return fmt.Errorf("failed to fetch top tracks: %w", err)
		}
	}
	if cmd.Bool("albums") {
		page, err := catalog.ArtistAlbums(ctx, id, []string{"album", "single"}, services.PageOptions{Limit: services.MaxPageLimit, Market: market})
		if err != nil {
			return fmt.Errorf("failed to fetch albums: %w", err)
		}
		if out.Albums, err = services.AllPages(ctx, doer, page); err != nil {
			return fmt.Errorf("failed to page albums: %w", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	r.writePlainHeader(artist.Name)
	if len(artist.Genres) > 0 {
		r.writePlain("%s\n", r.palette.Field("Genres", strings.Join(artist.Genres, ", ")))
	}
	if artist.Followers != nil {
		r.writePlain("%s\n", r.palette.Field("Followers", artist.Followers.Total))
	}
	if artist.Popularity != nil {
		r.writePlain("%s\n", r.palette.Field("Popularity", *artist.Popularity))
	}
	r.writePlain("%s\n", r.palette.Field("URI", artist.URI))

	if len(out.TopTracks) > 0 {
		r.writePlainln("Top tracks:")
		for i, t := range out.TopTracks {
			r.writePlain("%2d. %s (%s)\n", i+1, t.Name, t.Album.Name)
		}
	}
	if len(out.Albums) > 0 {
		r.writePlainln("Releases:")
		for _, a := range out.Albums {
			r.writePlain("   %s  %s [%s]\n", a.ReleaseDate, a.Name, a.AlbumType)
		}
	}
	return nil
}

// Search queries the catalog for each requested type.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	types, err := services.ParseSearchTypes(cmd.String("type"))
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	if limit < 1 || limit > services.MaxPageLimit {
		return fmt.Errorf("%w: --limit must be between 1 and %d", shared.ErrInvalidFlag, services.MaxPageLimit)
	}

	doer, closer, err := r.catalogDoer(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	results, err := services.NewCatalogService(doer).Search(ctx, query, types, services.PageOptions{
		Limit:  limit,
		Market: cmd.String("market"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, true)
	}

	if results.Tracks != nil {
		r.writePlainHeader(fmt.Sprintf("Tracks (%d)", results.Tracks.Total))
		for i, t := range results.Tracks.Items {
			r.writePlain("%2d. %s\n", i+1, t.String())
			r.writePlain("%s\n", r.palette.Field("ID", t.ID))
		}
	}
	if results.Albums != nil {
		r.writePlainHeader(fmt.Sprintf("Albums (%d)", results.Albums.Total))
		for i, a := range results.Albums.Items {
			r.writePlain("%2d. %s (%s)\n", i+1, a.Name, a.ReleaseDate)
			r.writePlain("%s\n", r.palette.Field("ID", a.ID))
		}
	}
	if results.Artists != nil {
		r.writePlainHeader(fmt.Sprintf("Artists (%d)", results.Artists.Total))
		for i, a := range results.Artists.Items {
			r.writePlain("%2d. %s\n", i+1, a.Name)
			r.writePlain("%s\n", r.palette.Field("ID", a.ID))
		}
	}
	if results.Playlists != nil {
		r.writePlainHeader(fmt.Sprintf("Playlists (%d)", results.Playlists.Total))
		n := 0
		for _, p := range results.Playlists.Items {
			if p == nil {
				continue
			}
			n++
			r.writePlain("%2d. %s by %s\n", n, p.Name, p.Owner.DisplayName)
			r.writePlain("%s\n", r.palette.Field("ID", p.ID))
		}
	}
	return nil
}
