package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
)

// PlayerStatus shows the current playback.
func (r *Runner) PlayerStatus(ctx context.Context, cmd *cli.Command) error {
	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	state, err := svc.PlaybackState(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(state, true)
	}
	if state == nil {
		return r.writePlain("%s\n", r.palette.Help("Nothing is playing"))
	}

	status := "Paused"
	if state.IsPlaying {
		status = "Playing"
	}
	r.writePlainHeader(status)
	if state.Item != nil {
		r.writePlain("%s\n", r.palette.Title(state.Item.Name))
		r.writePlain("%s\n", r.palette.Field("Artist", state.Item.ArtistNames()))
		r.writePlain("%s\n", r.palette.Field("Album", state.Item.Album.Name))
		r.writePlain("%s\n", r.palette.Field("Position", fmt.Sprintf("%s / %s",
			shared.FormatDuration(state.ProgressMS/1000), shared.FormatDuration(state.Item.DurationMS/1000))))
	} else {
		r.writePlain("%s\n", r.palette.Field("Playing", state.CurrentlyPlayingType))
	}

	device := state.Device.Name
	if state.Device.VolumePercent != nil {
		device = fmt.Sprintf("%s (%d%%)", device, *state.Device.VolumePercent)
	}
	r.writePlain("%s\n", r.palette.Field("Device", device))
	r.writePlain("%s\n", r.palette.Field("Shuffle", state.ShuffleState))
	r.writePlain("%s\n", r.palette.Field("Repeat", state.RepeatState))
	return nil
}

// playerAction opens the user's service and runs fn against it, printing done on success.
func (r *Runner) playerAction(ctx context.Context, done string, fn func(*services.SpotifyService) error) error {
	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := fn(svc); err != nil {
		return err
	}
	return r.writePlain("%s\n", r.palette.OK(done))
}

// PlayerPlay resumes playback, or plays the given URIs.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	uris := cmd.Args().Slice()
	for _, uri := range uris {
		if !strings.HasPrefix(uri, "spotify:") {
			return fmt.Errorf("%w: %q is not a Spotify URI", shared.ErrInvalidArgument, uri)
		}
	}

	done := "Resumed"
	if len(uris) > 0 {
		done = fmt.Sprintf("Playing %d tracks", len(uris))
	}
	return r.playerAction(ctx, done, func(svc *services.SpotifyService) error {
		return svc.Play(ctx, cmd.String("device"), uris...)
	})
}

func (r *Runner) PlayerPause(ctx context.Context, cmd *cli.Command) error {
	return r.playerAction(ctx, "Paused", func(svc *services.SpotifyService) error {
		return svc.Pause(ctx, cmd.String("device"))
	})
}

func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	return r.playerAction(ctx, "Skipped", func(svc *services.SpotifyService) error {
		return svc.Next(ctx, cmd.String("device"))
	})
}

func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	return r.playerAction(ctx, "Back one track", func(svc *services.SpotifyService) error {
		return svc.Previous(ctx, cmd.String("device"))
	})
}

func (r *Runner) PlayerVolume(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.StringArg("percent")
	if arg == "" {
		return fmt.Errorf("%w: volume percent", shared.ErrMissingArgument)
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
	if err != nil {
		return fmt.Errorf("%w: volume %q is not a number", shared.ErrInvalidArgument, arg)
	}

	return r.playerAction(ctx, fmt.Sprintf("Volume set to %d%%", percent), func(svc *services.SpotifyService) error {
		return svc.SetVolume(ctx, percent)
	})
}

// PlayerSeek accepts a duration such as 1m30s, or plain seconds.
func (r *Runner) PlayerSeek(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.StringArg("position")
	if arg == "" {
		return fmt.Errorf("%w: position", shared.ErrMissingArgument)
	}

	position, err := time.ParseDuration(arg)
	if err != nil {
		seconds, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return fmt.Errorf("%w: position %q", shared.ErrInvalidArgument, arg)
		}
		position = time.Duration(seconds) * time.Second
	}

	return r.playerAction(ctx, "Seeked to "+shared.FormatDuration(int(position.Seconds())), func(svc *services.SpotifyService) error {
		return svc.Seek(ctx, int(position.Milliseconds()))
	})
}

// PlayerQueue lists the queue, or appends the URI given as argument.
func (r *Runner) PlayerQueue(ctx context.Context, cmd *cli.Command) error {
	if uri := cmd.Args().First(); uri != "" {
		return r.playerAction(ctx, "Queued "+uri, func(svc *services.SpotifyService) error {
			return svc.AddToQueue(ctx, uri)
		})
	}

	svc, closer, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	queue, err := svc.Queue(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(queue, true)
	}

	if queue.CurrentlyPlaying != nil {
		r.writePlain("%s\n", r.palette.Field("Now playing", queue.CurrentlyPlaying.String()))
	}
	if len(queue.Queue) == 0 {
		return r.writePlain("%s\n", r.palette.Help("Queue is empty"))
	}
	r.writePlainln("Up next:")
	for i, t := range queue.Queue {
		r.writePlain("%2d. %s\n", i+1, t.String())
	}
	return nil
}
