package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/spotkit/internal/formatter"
	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
)

const (
	DefaultExportWorkers = 5
	MaxExportWorkers     = 10
	DefaultExportRate    = 5.0
	ManifestFilename     = "export_manifest.json"
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format        formatter.Format                                     // json, csv, markdown or txt
	OutputDir     string                                               // Base output directory (default: spotify_export_{epoch})
	NumWorkers    int                                                  // Concurrent workers (default: 5, at most 10)
	RateLimit     float64                                              // Playlists started per second (default: 5)
	GetCoverImage func(ctx context.Context, id string) (string, error) // Cover URL lookup for Markdown exports
	HTTPClient    *http.Client                                         // Used for cover downloads
}

type exportJob struct {
	index int
	id    string
}

// BulkExport exports multiple playlists concurrently and writes a manifest summarizing the run.
//
// Workers share srv, and with it one token manager and one rate-limit governor, so a 429 seen by any worker holds
// back all of them. A failed playlist is recorded in the result and does not stop the others. Results keep the order
// of ids.
func (e *PlaylistEngine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	srv services.Service,
	ids []string,
	opts BulkExportOpts,
) (*formatter.BulkExportResult, error) {
	if srv == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no playlists to export", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	opts.Format = format

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("spotify_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultExportWorkers
	}
	if opts.NumWorkers > MaxExportWorkers {
		opts.NumWorkers = MaxExportWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultExportRate
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	results := make([]formatter.PlaylistExportResult, len(ids))
	jobs := make(chan exportJob)
	done := make(chan int, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				e.sendProgress(prog, exportingPlaylistUpdate(job.index+1, len(ids), job.id))
				results[job.index] = e.exportSinglePlaylist(ctx, srv, limiter, job, opts)
				done <- job.index
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			select {
			case jobs <- exportJob{index: i, id: id}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	processed := make([]bool, len(ids))
	completed := 0
	for i := range done {
		completed++
		processed[i] = true

		res := results[i]
		if res.Success {
			e.sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.PlaylistName, len(res.Files)))
		} else {
			e.sendProgress(prog, exportFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
		}
	}

	result := &formatter.BulkExportResult{
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         results,
	}
	for i := range results {
		if !processed[i] {
			results[i] = formatter.PlaylistExportResult{
				PlaylistID:   ids[i],
				PlaylistName: unknownName(ids[i]),
				Error:        fmt.Errorf("export not started: %w", ctx.Err()),
			}
		}
		if results[i].Success {
			result.SuccessfulExports++
		} else {
			result.FailedExports++
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, ManifestFilename)
	if err := formatter.WriteBulkExportManifest(result, opts.Format, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	e.logger.Info("bulk export finished",
		"total", result.TotalPlaylists, "ok", result.SuccessfulExports, "failed", result.FailedExports,
		"dir", opts.OutputDir)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("export interrupted: %w", err)
	}
	return result, nil
}

// exportSinglePlaylist fetches one playlist and writes it in the requested format.
func (e *PlaylistEngine) exportSinglePlaylist(
	ctx context.Context,
	srv services.Service,
	limiter *rate.Limiter,
	job exportJob,
	opts BulkExportOpts,
) formatter.PlaylistExportResult {
	result := formatter.PlaylistExportResult{
		PlaylistID:   job.id,
		PlaylistName: unknownName(job.id),
		Files:        []string{},
	}

	if err := limiter.Wait(ctx); err != nil {
		result.Error = err
		return result
	}

	export, err := srv.ExportPlaylist(ctx, job.id)
	if err != nil {
		result.Error = fmt.Errorf("failed to fetch playlist: %w", err)
		return result
	}
	result.PlaylistName = export.Playlist.Name

	md := formatter.MarkdownOptions{HTTPClient: opts.HTTPClient, Logger: e.logger}
	if opts.Format == formatter.FormatMarkdown && opts.GetCoverImage != nil {
		if url, err := opts.GetCoverImage(ctx, job.id); err != nil {
			e.logger.Warn("cover lookup failed", "playlist", job.id, "err", err)
		} else {
			md.ImageURL = url
		}
	}

	files, err := formatter.WriteExport(ctx, export, opts.Format, opts.OutputDir, md)
	if err != nil {
		result.Error = err
		return result
	}

	result.Files = files
	result.Success = true
	return result
}

func unknownName(id string) string {
	return fmt.Sprintf("Unknown (%s)", id)
}
