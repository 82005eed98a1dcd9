package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
	"github.com/desertthunder/spotkit/internal/tasks"
)

// APIGet makes a direct GET request to the Web API with the stored login.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	query := url.Values{}
	for _, kv := range cmd.StringSlice("query") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("%w: query %q must be key=value", shared.ErrInvalidFlag, kv)
		}
		query.Add(k, v)
	}

	s, err := r.requireSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Info("GET request", "path", path)
	resp, err := services.NewAPIService(s).Get(ctx, path, query, cmd.StringSlice("scope")...)
	if err != nil {
		return err
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

// APISend makes a request with any method and an optional JSON body.
func (r *Runner) APISend(ctx context.Context, cmd *cli.Command) error {
	method := strings.ToUpper(cmd.StringArg("method"))
	path := cmd.StringArg("path")
	if method == "" || path == "" {
		return fmt.Errorf("%w: method and path", shared.ErrMissingArgument)
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("%w: unsupported method %s", shared.ErrInvalidArgument, method)
	}

	s, err := r.requireSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Info("sending request", "method", method, "path", path)
	resp, err := services.NewAPIService(s).Send(ctx, method, path, []byte(cmd.String("data")), cmd.StringSlice("scope")...)
	if err != nil {
		return err
	}
	if len(resp.Body) == 0 {
		return r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("%s %s: %d", method, path, resp.StatusCode)))
	}
	return r.writeResponse(resp, true)
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}
	return r.writePlain("%s\n", resp.Body)
}

// APIDump fetches the profile, library, top items and listening history in one document. Endpoints the login's
// scopes do not cover are listed under errors.
func (r *Runner) APIDump(ctx context.Context, cmd *cli.Command) error {
	s, err := r.requireSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r.writePlain("Fetching account data...\n\n")

	progress, wait := r.progressPrinter()
	result, err := tasks.NewPlaylistEngine(nil, services.NewAPIService(s), r.logger).Dump(ctx, progress)
	wait()
	if err != nil {
		return err
	}

	data := result.Data()
	if path := cmd.String("save"); path != "" {
		out, err := shared.MarshalJSON(data, true)
		if err != nil {
			return fmt.Errorf("failed to marshal dump: %w", err)
		}
		if err := os.WriteFile(path, out, 0600); err != nil {
			return fmt.Errorf("failed to write dump: %w", err)
		}
		r.logger.Info("dump saved", "file", path)
	}

	if len(data.Errors) > 0 {
		r.writePlain("\n%s\n", r.palette.Warn(fmt.Sprintf("%d endpoints failed", len(data.Errors))))
		for _, e := range data.Errors {
			r.writePlain("  - %s: %s\n", e.Endpoint, e.Error)
		}
		r.writePlain("\n")
	}
	return r.writeJSON(data, cmd.Bool("pretty"))
}
