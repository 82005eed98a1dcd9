package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/formatter"
	"github.com/desertthunder/spotkit/internal/shared"
	"github.com/desertthunder/spotkit/internal/tasks"
)

// BulkExport exports the given playlists, or the whole library with --all, through the engine's worker pool.
func (r *Runner) BulkExport(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	all := cmd.Bool("all")
	switch {
	case all && len(ids) > 0:
		return fmt.Errorf("%w: pass playlist IDs or --all, not both", shared.ErrInvalidArgument)
	case !all && len(ids) == 0:
		return fmt.Errorf("%w: playlist IDs or --all", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	workers := cmd.Int("workers")
	if workers < 1 || workers > tasks.MaxExportWorkers {
		return fmt.Errorf("%w: --workers must be between 1 and %d", shared.ErrInvalidFlag, tasks.MaxExportWorkers)
	}

	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	if all {
		playlists, err := svc.GetPlaylists(ctx)
		if err != nil {
			return fmt.Errorf("failed to list playlists: %w", err)
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
		if len(ids) == 0 {
			return r.writePlain("%s\n", r.palette.Warn("No playlists to export"))
		}
	}

	r.writePlain("Exporting %d playlists as %s with %d workers...\n\n", len(ids), format, workers)

	progress, wait := r.progressPrinter()
	result, err := tasks.NewPlaylistEngine(svc, nil, r.logger).BulkExport(ctx, progress, svc, ids, tasks.BulkExportOpts{
		Format:        format,
		OutputDir:     cmd.String("dir"),
		NumWorkers:    workers,
		RateLimit:     cmd.Float("rate"),
		GetCoverImage: svc.PlaylistCoverURL,
		HTTPClient:    r.httpClient,
	})
	wait()
	if result == nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete")
	r.writePlain("%s\n", r.palette.Field("Directory", result.OutputDirectory))
	r.writePlain("%s\n", r.palette.Field("Exported", fmt.Sprintf("%d/%d", result.SuccessfulExports, result.TotalPlaylists)))
	if result.ManifestPath != "" {
		r.writePlain("%s\n", r.palette.Field("Manifest", result.ManifestPath))
	}

	if result.FailedExports > 0 {
		r.writePlainln("%s", r.palette.Warn(fmt.Sprintf("%d playlists failed:", result.FailedExports)))
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s: %v\n", res.PlaylistName, res.Error)
			}
		}
	}
	return err
}
