package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/client"
	"github.com/desertthunder/spotkit/internal/shared"
)

// PlaybackState retrieves the user's current playback. It returns nil, nil when nothing is playing.
func (s *SpotifyService) PlaybackState(ctx context.Context) (*PlaybackState, error) {
	resp, err := s.doer.Execute(ctx, client.Get("me/player", nil, auth.ScopeUserReadPlaybackState))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, nil
	}

	var state PlaybackState
	if err := client.DecodeJSON(resp.Body, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Play resumes playback, or starts uris when given. An empty deviceID targets the active device.
func (s *SpotifyService) Play(ctx context.Context, deviceID string, uris ...string) error {
	var body any
	if len(uris) > 0 {
		body = map[string]any{"uris": uris}
	}
	req, err := client.JSON(http.MethodPut, "me/player/play", body, auth.ScopeUserModifyPlaybackState)
	if err != nil {
		return err
	}
	req.Query = deviceQuery(deviceID)
	return s.doer.Do(ctx, req, nil)
}

// Pause pauses playback.
func (s *SpotifyService) Pause(ctx context.Context, deviceID string) error {
	return s.playerCommand(ctx, http.MethodPut, "me/player/pause", deviceQuery(deviceID))
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context, deviceID string) error {
	return s.playerCommand(ctx, http.MethodPost, "me/player/next", deviceQuery(deviceID))
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context, deviceID string) error {
	return s.playerCommand(ctx, http.MethodPost, "me/player/previous", deviceQuery(deviceID))
}

// Seek moves playback to positionMS in the current track.
func (s *SpotifyService) Seek(ctx context.Context, positionMS int) error {
	if positionMS < 0 {
		return fmt.Errorf("%w: position must not be negative", shared.ErrInvalidArgument)
	}
	q := url.Values{}
	q.Set("position_ms", strconv.Itoa(positionMS))
	return s.playerCommand(ctx, http.MethodPut, "me/player/seek", q)
}

// SetVolume sets the playback volume, 0 to 100.
func (s *SpotifyService) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d outside 0-100", shared.ErrInvalidArgument, percent)
	}
	q := url.Values{}
	q.Set("volume_percent", strconv.Itoa(percent))
	return s.playerCommand(ctx, http.MethodPut, "me/player/volume", q)
}

// Queue retrieves the playing track and the user's queue.
func (s *SpotifyService) Queue(ctx context.Context) (*PlaybackQueue, error) {
	var queue PlaybackQueue
	if err := s.doer.Do(ctx, client.Get("me/player/queue", nil, auth.ScopeUserReadPlaybackState), &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

// AddToQueue appends a track or episode URI to the queue.
func (s *SpotifyService) AddToQueue(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: uri", shared.ErrMissingArgument)
	}
	q := url.Values{}
	q.Set("uri", uri)
	return s.playerCommand(ctx, http.MethodPost, "me/player/queue", q)
}

func (s *SpotifyService) playerCommand(ctx context.Context, method, path string, q url.Values) error {
	req := client.Request{Method: method, Path: path, Query: q, Scopes: []string{auth.ScopeUserModifyPlaybackState}}
	return s.doer.Do(ctx, req, nil)
}

func deviceQuery(deviceID string) url.Values {
	if deviceID == "" {
		return nil
	}
	q := url.Values{}
	q.Set("device_id", deviceID)
	return q
}
