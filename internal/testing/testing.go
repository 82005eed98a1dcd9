// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/spotkit/internal/models"
	"github.com/desertthunder/spotkit/internal/shared"
)

// MockService is an in-memory test double for services.Service.
//
// Exports are served from Exports; IDs listed in Failures fail with the given error. Delay holds every export so
// tests can observe concurrency. SearchTrack answers from Matches, keyed "title|artist".
type MockService struct {
	Exports   map[string]*models.PlaylistExport
	Failures  map[string]error
	Matches   map[string]*models.Track
	Delay     time.Duration
	ImportErr error

	mu       sync.Mutex
	exported []string
	imported []*models.PlaylistExport
	active   atomic.Int32
	peak     atomic.Int32
}

func NewMockService(exports ...*models.PlaylistExport) *MockService {
	m := &MockService{
		Exports:  map[string]*models.PlaylistExport{},
		Failures: map[string]error{},
		Matches:  map[string]*models.Track{},
	}
	for _, e := range exports {
		m.Exports[e.Playlist.ID] = e
	}
	return m
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	playlists := make([]models.Playlist, 0, len(m.Exports))
	for _, e := range m.Exports {
		playlists = append(playlists, e.Playlist)
	}
	return playlists, nil
}

func (m *MockService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	e, err := m.ExportPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return &e.Playlist, nil
}

func (m *MockService) ExportPlaylist(ctx context.Context, playlistID string) (*models.PlaylistExport, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.exported = append(m.exported, playlistID)
	m.mu.Unlock()

	if err, ok := m.Failures[playlistID]; ok {
		return nil, err
	}
	e, ok := m.Exports[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return e, nil
}

func (m *MockService) ImportPlaylist(ctx context.Context, playlist *models.PlaylistExport) (*models.Playlist, error) {
	if m.ImportErr != nil {
		return nil, m.ImportErr
	}

	m.mu.Lock()
	m.imported = append(m.imported, playlist)
	m.mu.Unlock()

	created := playlist.Playlist
	created.ID = fmt.Sprintf("imported-%d", len(m.Imported()))
	created.TrackCount = len(playlist.Tracks)
	return &created, nil
}

func (m *MockService) SearchTrack(ctx context.Context, title, artist string) (*models.Track, error) {
	if t, ok := m.Matches[title+"|"+artist]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s - %s", shared.ErrTrackNotFound, artist, title)
}

func (m *MockService) Name() string { return "mock" }

// Exported lists the playlist IDs ExportPlaylist was called with, in call order.
func (m *MockService) Exported() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.exported...)
}

// Imported lists the exports handed to ImportPlaylist.
func (m *MockService) Imported() []*models.PlaylistExport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.PlaylistExport(nil), m.imported...)
}

// PeakConcurrency is the most exports that were in flight at once.
func (m *MockService) PeakConcurrency() int { return int(m.peak.Load()) }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
