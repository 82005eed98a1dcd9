package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/client"
	"github.com/desertthunder/spotkit/internal/repositories"
	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
	"github.com/desertthunder/spotkit/internal/ui"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config          *shared.Config
	configPath      string
	httpClient      *http.Client
	logger          *log.Logger
	output          io.Writer
	palette         *ui.Palette
	openBrowser     func(string) error
	callbackTimeout time.Duration
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config path when the command runs.
type RunnerOpts struct {
	Config          *shared.Config
	HTTPClient      *http.Client
	Logger          *log.Logger
	Output          io.Writer
	OpenBrowser     func(string) error
	CallbackTimeout time.Duration
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = 2 * time.Minute
	}

	return &Runner{
		config:          opts.Config,
		configPath:      defaultConfigPath,
		httpClient:      opts.HTTPClient,
		logger:          opts.Logger,
		output:          opts.Output,
		palette:         ui.Default,
		openBrowser:     opts.OpenBrowser,
		callbackTimeout: opts.CallbackTimeout,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, trackCommand, albumCommand, artistCommand, searchCommand,
		playlistsCommand, playlistCommand, exportCommand, playerCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads configuration and applies the log level. Runs ahead of every command.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.config == nil || cmd.IsSet("config") {
		config, err := r.loadConfig()
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if err := shared.LoadEnv(r.config); err != nil {
		r.logger.Warn("failed to load .env", "err", err)
	}

	levelName := r.config.Log.Level
	if cmd.IsSet("log-level") {
		levelName = cmd.String("log-level")
	}
	level, err := shared.ParseLogLevel(levelName)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// loadConfig reads the config file, falling back to defaults when none exists yet.
func (r *Runner) loadConfig() (*shared.Config, error) {
	if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return shared.DefaultConfig(), nil
	}
	return shared.LoadConfig(r.configPath)
}

func (r *Runner) clientOptions() client.Options {
	opts := client.OptionsFromConfig(r.config, r.logger)
	opts.HTTPClient = r.httpClient
	return opts
}

// session is a user client plus the store connection backing its token manager.
type session struct {
	*client.UserClient
	closer io.Closer
}

func (s *session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// openSession builds a user client for flow (the configured flow when empty) with its credential store attached.
// No stored token is loaded; see [Runner.requireSession].
func (r *Runner) openSession(ctx context.Context, flow string) (*session, error) {
	if flow == "" {
		flow = r.config.Credentials.Spotify.Flow
	}
	checked := *r.config
	checked.Credentials.Spotify.Flow = flow
	if err := checked.Validate(); err != nil {
		return nil, err
	}
	if flow == shared.FlowClientCredentials {
		return nil, fmt.Errorf("%w: the %s flow cannot act for a user; set credentials.spotify.flow to %s or %s",
			shared.ErrInvalidConfig, flow, shared.FlowAuthorizationCode, shared.FlowPKCE)
	}

	store, closer, err := repositories.NewStore(ctx, r.config, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	opts := r.clientOptions()
	opts.Store = store
	uc, err := client.NewUserClientForFlow(flow, opts)
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &session{UserClient: uc, closer: closer}, nil
}

// requireSession opens a session and restores the stored login, failing when there is none.
func (r *Runner) requireSession(ctx context.Context) (*session, error) {
	s, err := r.openSession(ctx, "")
	if err != nil {
		return nil, err
	}

	ok, err := s.Tokens().Restore(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load stored credentials: %w", err)
	}
	if !ok {
		s.Close()
		return nil, fmt.Errorf("%w: run 'spotkit auth login' first", shared.ErrNotAuthenticated)
	}
	return s, nil
}

// catalogDoer returns a client able to read the public catalog: an app client under the client credentials flow,
// otherwise the logged-in user's client.
func (r *Runner) catalogDoer(ctx context.Context) (client.Doer, io.Closer, error) {
	if r.config.Credentials.Spotify.Flow == shared.FlowClientCredentials {
		if err := r.config.Validate(); err != nil {
			return nil, nil, err
		}
		app, err := client.NewAppClient(r.clientOptions())
		if err != nil {
			return nil, nil, err
		}
		return app, io.NopCloser(nil), nil
	}

	s, err := r.requireSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

func (r *Runner) spotifyService(ctx context.Context) (*services.SpotifyService, io.Closer, error) {
	s, err := r.requireSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	return services.NewSpotifyService(s), s, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("%s", r.palette.Header(title))
}
