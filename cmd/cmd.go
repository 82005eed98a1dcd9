// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func marketFlag() cli.Flag {
	return &cli.StringFlag{Name: "market", Aliases: []string{"m"}, Usage: "ISO 3166-1 country code for track relinking"}
}

// setupCommand writes a starter config and prepares the credential store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and run database migrations",
		Action: r.Setup,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Spotify login",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize spotkit in the browser and store the refresh token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pkce",
						Usage: "Use the PKCE flow (no client secret) regardless of config",
					},
					&cli.BoolFlag{
						Name:  "show-dialog",
						Usage: "Ask Spotify to show the consent dialog even if already approved",
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored login and its scopes",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Delete the stored login",
				Action: r.AuthLogout,
			},
		},
	}
}

func trackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Look up one or more tracks by ID",
		ArgsUsage: "<id> [id...]",
		Flags:     []cli.Flag{marketFlag(), jsonFlag()},
		Action:    r.Track,
	}
}

func albumCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "album",
		Usage:     "Show an album and its tracks",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{marketFlag(), jsonFlag()},
		Action:    r.Album,
	}
}

func artistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "artist",
		Usage:     "Show an artist, optionally with top tracks and albums",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "top", Usage: "Include top tracks"},
			&cli.BoolFlag{Name: "albums", Usage: "Include albums and singles"},
			marketFlag(),
			jsonFlag(),
		},
		Action: r.Artist,
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Comma-separated types: track, album, artist, playlist",
				Value:   "track",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Results per type (1-50)",
				Value: 10,
			},
			marketFlag(),
			jsonFlag(),
		},
		Action: r.Search,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List your playlists",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of playlists to show (0 for all)",
			},
			jsonFlag(),
		},
		Action: r.Playlists,
	}
}

// playlistCommand groups single-playlist operations
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Export, copy, import and compare playlists",
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Export a playlist with all its tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "json, csv, markdown or txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   ".",
					},
				},
				Action: r.PlaylistExport,
			},
			{
				Name:      "copy",
				Usage:     "Duplicate a playlist (by ID or name) into a new private playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "source"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Name of the new playlist (default: '<source> (copy)')"},
				},
				Action: r.PlaylistCopy,
			},
			{
				Name:      "import",
				Usage:     "Recreate a playlist from a JSON export",
				Arguments: []cli.Argument{&cli.StringArg{Name: "file"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Name of the new playlist (default: the exported name)"},
				},
				Action: r.PlaylistImport,
			},
			{
				Name:  "diff",
				Usage: "Compare two playlists; either side may be a JSON export file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "source"},
					&cli.StringArg{Name: "dest"},
				},
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlaylistDiff,
			},
		},
	}
}

// exportCommand exports many playlists at once
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export many playlists concurrently",
		ArgsUsage: "[id...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Export every playlist in your library",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "json, csv, markdown or txt",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: spotify_export_<epoch>)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent exports (max 10)",
				Value: 5,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Playlists started per second",
				Value: 5,
			},
		},
		Action: r.BulkExport,
	}
}

func playerCommand(r *Runner) *cli.Command {
	device := &cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "Target device ID"}

	return &cli.Command{
		Name:  "player",
		Usage: "Control playback (requires Spotify Premium)",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show what is playing",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlayerStatus,
			},
			{
				Name:      "play",
				Usage:     "Resume playback, or play the given track URIs",
				ArgsUsage: "[uri...]",
				Flags:     []cli.Flag{device},
				Action:    r.PlayerPlay,
			},
			{
				Name:   "pause",
				Usage:  "Pause playback",
				Flags:  []cli.Flag{device},
				Action: r.PlayerPause,
			},
			{
				Name:   "next",
				Usage:  "Skip to the next track",
				Flags:  []cli.Flag{device},
				Action: r.PlayerNext,
			},
			{
				Name:   "previous",
				Usage:  "Skip to the previous track",
				Flags:  []cli.Flag{device},
				Action: r.PlayerPrevious,
			},
			{
				Name:      "volume",
				Usage:     "Set the volume (0-100)",
				Arguments: []cli.Argument{&cli.StringArg{Name: "percent"}},
				Action:    r.PlayerVolume,
			},
			{
				Name:      "seek",
				Usage:     "Jump to a position in the current track",
				Arguments: []cli.Argument{&cli.StringArg{Name: "position"}},
				Action:    r.PlayerSeek,
			},
			{
				Name:      "queue",
				Usage:     "Show the playback queue, or add a track URI to it",
				ArgsUsage: "[uri]",
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.PlayerQueue,
			},
		},
	}
}

// apiCommand handles raw authorized Web API calls
func apiCommand(r *Runner) *cli.Command {
	scope := &cli.StringSliceFlag{Name: "scope", Usage: "Scope the endpoint requires (checked before sending)"}

	return &cli.Command{
		Name:  "api",
		Usage: "Raw Web API requests with the stored login",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "GET a path relative to the API root, prints the JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					scope,
					&cli.StringSliceFlag{Name: "query", Aliases: []string{"q"}, Usage: "key=value query parameter"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.APIGet,
			},
			{
				Name:      "send",
				Usage:     "Send a request with an optional JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "method"}, &cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					scope,
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON body to send"},
				},
				Action: r.APISend,
			},
			{
				Name:  "dump",
				Usage: "Fetch your profile, library, top items and history",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
					&cli.StringFlag{Name: "save", Usage: "Also write the dump to this file"},
				},
				Action: r.APIDump,
			},
		},
	}
}
