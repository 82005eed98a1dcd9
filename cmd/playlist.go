package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/formatter"
	"github.com/desertthunder/spotkit/internal/models"
	"github.com/desertthunder/spotkit/internal/shared"
	"github.com/desertthunder/spotkit/internal/tasks"
)

// progressPrinter returns a channel for engine progress and a func that closes it once the printer has drained it.
func (r *Runner) progressPrinter() (chan<- tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range ch {
			switch update.Phase {
			case tasks.SearchTracks:
				if update.Step == 0 {
					r.writePlain("%s\n", update.Message)
				} else {
					r.writePlain("   %s\n", r.palette.Help(update.Message))
				}
			default:
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	return ch, func() {
		close(ch)
		<-done
	}
}

// Playlists lists the user's playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	playlists, err := svc.GetPlaylists(ctx)
	if err != nil {
		return err
	}

	if limit := cmd.Int("limit"); limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, r.palette.Title(p.Name))
		if p.Description != "" {
			r.writePlain("%s\n", r.palette.Field("Description", p.Description))
		}
		r.writePlain("%s\n", r.palette.Field("ID", p.ID))
		r.writePlain("%s\n", r.palette.Field("Tracks", p.TrackCount))
		r.writePlain("%s\n\n", r.palette.Field("Visibility", shared.VisibilityString(p.Public)))
	}
	return nil
}

// PlaylistExport writes one playlist to disk in the requested format.
func (r *Runner) PlaylistExport(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	r.logger.Info("exporting playlist", "id", id, "format", format)
	export, err := svc.ExportPlaylist(ctx, id)
	if err != nil {
		return err
	}

	opts := formatter.MarkdownOptions{HTTPClient: r.httpClient, Logger: r.logger}
	if format == formatter.FormatMarkdown {
		if opts.ImageURL, err = svc.PlaylistCoverURL(ctx, id); err != nil {
			r.logger.Warn("failed to look up cover image", "playlist", id, "err", err)
		}
	}

	files, err := formatter.WriteExport(ctx, export, format, cmd.String("dir"), opts)
	if err != nil {
		return err
	}

	r.writePlain("%s\n", r.palette.OK("Exported "+export.Playlist.Name))
	r.writePlain("%s\n", r.palette.Field("Tracks", len(export.Tracks)))
	for _, f := range files {
		r.writePlain("%s\n", r.palette.Field("File", f))
	}
	return nil
}

// PlaylistCopy duplicates a playlist the user can read into a new private playlist.
func (r *Runner) PlaylistCopy(ctx context.Context, cmd *cli.Command) error {
	source := cmd.StringArg("source")
	if source == "" {
		return fmt.Errorf("%w: source playlist ID or name", shared.ErrMissingArgument)
	}

	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	progress, wait := r.progressPrinter()
	result, err := tasks.NewPlaylistEngine(svc, nil, r.logger).Copy(ctx, progress, source, cmd.String("name"))
	wait()
	if err != nil {
		return err
	}

	r.writeCopySummary("Copy Complete", result)
	return nil
}

// PlaylistImport recreates a playlist from a JSON export, searching for tracks that carry no Spotify URI.
func (r *Runner) PlaylistImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: export file", shared.ErrMissingArgument)
	}
	export, err := readExportFile(path)
	if err != nil {
		return err
	}

	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	progress, wait := r.progressPrinter()
	result, err := tasks.NewPlaylistEngine(svc, nil, r.logger).Import(ctx, progress, export, cmd.String("name"))
	wait()
	if err != nil {
		if result != nil {
			r.writeUnmatched(result)
		}
		return err
	}

	r.writeCopySummary("Import Complete", result)
	return nil
}

func (r *Runner) writeCopySummary(title string, result *tasks.CopyResult) {
	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Source: %s (%d tracks)\n", result.SourcePlaylist.Playlist.Name, result.TotalTracks)
	r.writePlain("Destination: %s (%d tracks)\n", result.DestPlaylist.Name, result.DestPlaylist.TrackCount)
	r.writePlain("Destination ID: %s\n", result.DestPlaylist.ID)
	r.writePlain("Success rate: %d/%d (%.1f%%)\n", result.SuccessCount, result.TotalTracks, result.MatchPercentage)
	r.writeUnmatched(result)
}

func (r *Runner) writeUnmatched(result *tasks.CopyResult) {
	if result.FailedCount == 0 {
		return
	}
	r.writePlain("\nFailed to match %d tracks:\n", result.FailedCount)
	for _, match := range result.TrackMatches {
		if match.Error != nil {
			r.writePlain("  - %s - %s\n", match.Original.Artist, match.Original.Title)
		}
	}
}

// PlaylistDiff compares two playlists. Arguments ending in .json are read as export files, anything else is a
// playlist ID.
func (r *Runner) PlaylistDiff(ctx context.Context, cmd *cli.Command) error {
	sourceArg, destArg := cmd.StringArg("source"), cmd.StringArg("dest")
	if sourceArg == "" || destArg == "" {
		return fmt.Errorf("%w: source and destination playlists", shared.ErrMissingArgument)
	}

	var comparison *tasks.ComparisonResult
	if !isExportFile(sourceArg) && !isExportFile(destArg) {
		svc, closer, err := r.spotifyService(ctx)
		if err != nil {
			return err
		}
		defer closer.Close()

		progress, wait := r.progressPrinter()
		comparison, err = tasks.NewPlaylistEngine(svc, nil, r.logger).Diff(ctx, progress, sourceArg, destArg)
		wait()
		if err != nil {
			return err
		}
	} else {
		src, err := r.loadExport(ctx, sourceArg)
		if err != nil {
			return fmt.Errorf("failed to load source playlist: %w", err)
		}
		dest, err := r.loadExport(ctx, destArg)
		if err != nil {
			return fmt.Errorf("failed to load destination playlist: %w", err)
		}
		result := tasks.CompareExports(src, dest)
		comparison = &result
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Source        string         `json:"source"`
			Dest          string         `json:"dest"`
			Matched       int            `json:"matched"`
			MissingInDest []models.Track `json:"missing_in_dest"`
			ExtraInDest   []models.Track `json:"extra_in_dest"`
		}{
			comparison.SourcePlaylist.Playlist.Name,
			comparison.DestPlaylist.Playlist.Name,
			comparison.MatchedCount,
			comparison.MissingInDest,
			comparison.ExtraInDest,
		}, true)
	}

	r.writePlain("\n%s\n", r.palette.OK(fmt.Sprintf("Source: %s (%d tracks)",
		comparison.SourcePlaylist.Playlist.Name, len(comparison.SourcePlaylist.Tracks))))
	r.writePlain("%s\n\n", r.palette.OK(fmt.Sprintf("Destination: %s (%d tracks)",
		comparison.DestPlaylist.Playlist.Name, len(comparison.DestPlaylist.Tracks))))

	r.writePlainHeader("Comparison Results")
	r.writePlain("Matched: %d tracks\n", comparison.MatchedCount)
	r.writePlain("Missing from destination: %d tracks\n", len(comparison.MissingInDest))
	r.writePlain("Extra in destination: %d tracks\n", len(comparison.ExtraInDest))

	r.writeTrackList("Missing from destination:", comparison.MissingInDest)
	r.writeTrackList("Extra in destination (not in source):", comparison.ExtraInDest)
	return nil
}

func (r *Runner) writeTrackList(title string, tracks []models.Track) {
	if len(tracks) == 0 {
		return
	}
	r.writePlainln("%s", title)
	for i, track := range tracks {
		r.writePlain("  %d. %s - %s", i+1, track.Artist, track.Title)
		if track.Album != "" {
			r.writePlain(" (%s)", track.Album)
		}
		r.writePlain("\n")
	}
}

// loadExport reads arg as an export file, or exports the playlist with that ID.
func (r *Runner) loadExport(ctx context.Context, arg string) (*models.PlaylistExport, error) {
	if isExportFile(arg) {
		return readExportFile(arg)
	}

	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return svc.ExportPlaylist(ctx, arg)
}

func isExportFile(arg string) bool {
	return strings.HasSuffix(strings.ToLower(arg), ".json")
}

func readExportFile(path string) (*models.PlaylistExport, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", shared.ErrInvalidArgument, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var export models.PlaylistExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: %s is not a playlist export: %v", shared.ErrInvalidInput, path, err)
	}
	if export.Playlist.Name == "" && len(export.Tracks) == 0 {
		return nil, fmt.Errorf("%w: %s contains no playlist", shared.ErrInvalidInput, path)
	}
	return &export, nil
}
