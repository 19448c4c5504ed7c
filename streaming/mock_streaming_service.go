package streaming

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/campbelljlowman/auxparty-api/model"
)

const mockTrackDurationMs = 180000

// MockStreamingService is an in-memory player and catalog. It backs tests and the --mock-player dry run.
type MockStreamingService struct {
	mu sync.Mutex

	tracks   map[string]model.Track
	missing  map[string]struct{}
	playlist []model.Track
	devices  []Device
	status   PlaybackStatus

	playCalls   []string
	resumeCalls int
	pauseCalls  int

	statusCalls int
	failures    map[string]error

	// playGate, when set, blocks Play until it is closed.
	playGate    chan struct{}
	playPending int
}

// Operations that Fail can target.
const (
	MockPlay     = "play"
	MockResume   = "resume"
	MockPause    = "pause"
	MockStatus   = "status"
	MockDevices  = "devices"
	MockGetTrack = "getTrack"
	MockPlaylist = "playlist"
	MockSearch   = "search"
)

func NewMockStreamingService() *MockStreamingService {
	return &MockStreamingService{
		tracks:   make(map[string]model.Track),
		missing:  make(map[string]struct{}),
		devices:  []Device{{ID: "mock-device", Name: "Mock Speaker", Active: true}},
		failures: make(map[string]error),
	}
}

func (m *MockStreamingService) Play(ctx context.Context, trackID string, opts PlayOptions) error {
	m.mu.Lock()
	gate := m.playGate
	m.playPending++
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.playPending--
	m.playCalls = append(m.playCalls, trackID)
	if err := m.failures[MockPlay]; err != nil {
		return err
	}

	m.status.IsPlaying = true
	m.status.CurrentTrackID = trackID
	m.status.ProgressMs = opts.PositionMs
	m.status.DurationMs = m.durationOf(trackID)
	return nil
}

func (m *MockStreamingService) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	if err := m.failures[MockResume]; err != nil {
		return err
	}
	m.status.IsPlaying = true
	return nil
}

func (m *MockStreamingService) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	if err := m.failures[MockPause]; err != nil {
		return err
	}
	m.status.IsPlaying = false
	return nil
}

func (m *MockStreamingService) Status(ctx context.Context) (*PlaybackStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if err := m.failures[MockStatus]; err != nil {
		return nil, err
	}
	status := m.status
	if len(m.devices) > 0 {
		device := m.devices[0]
		status.Device = &device
	}
	return &status, nil
}

func (m *MockStreamingService) ListDevices(ctx context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[MockDevices]; err != nil {
		return nil, err
	}
	return append([]Device(nil), m.devices...), nil
}

// GetTrack fabricates metadata for any id not registered with AddTrack, unless it was marked missing.
func (m *MockStreamingService) GetTrack(ctx context.Context, trackID string) (*model.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[MockGetTrack]; err != nil {
		return nil, err
	}
	if _, missing := m.missing[trackID]; missing {
		return nil, ErrTrackNotFound
	}
	if track, exists := m.tracks[trackID]; exists {
		return &track, nil
	}
	track := fakeTrack(trackID)
	return &track, nil
}

func (m *MockStreamingService) GetPlaylistPage(ctx context.Context, playlistID string, offset int) ([]model.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[MockPlaylist]; err != nil {
		return nil, err
	}
	if offset >= len(m.playlist) {
		return []model.Track{}, nil
	}
	return append([]model.Track(nil), m.playlist[offset:]...), nil
}

func (m *MockStreamingService) Search(ctx context.Context, query string) ([]model.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[MockSearch]; err != nil {
		return nil, err
	}
	results := []model.Track{}
	for _, track := range m.tracks {
		if strings.Contains(strings.ToLower(track.Title), strings.ToLower(query)) {
			results = append(results, track)
		}
	}
	return results, nil
}

// Fail makes op return err until Fail(op, nil) is called.
func (m *MockStreamingService) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *MockStreamingService) SetPlayGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playGate = gate
}

func (m *MockStreamingService) AddTrack(track model.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[track.TrackID] = track
}

func (m *MockStreamingService) MarkMissing(trackID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[trackID] = struct{}{}
}

func (m *MockStreamingService) SetPlaylist(trackIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlist = nil
	for _, id := range trackIDs {
		m.playlist = append(m.playlist, fakeTrack(id))
	}
}

func (m *MockStreamingService) SetDevices(devices ...Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devices
}

func (m *MockStreamingService) SetStatus(status PlaybackStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

func (m *MockStreamingService) SetProgress(progressMs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.ProgressMs = progressMs
}

func (m *MockStreamingService) SetPlaying(playing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.IsPlaying = playing
}

func (m *MockStreamingService) PlayCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.playCalls...)
}

func (m *MockStreamingService) PendingPlays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playPending
}

func (m *MockStreamingService) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

func (m *MockStreamingService) ResumeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeCalls
}

func (m *MockStreamingService) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

func (m *MockStreamingService) durationOf(trackID string) int {
	if track, exists := m.tracks[trackID]; exists && track.DurationMs > 0 {
		return track.DurationMs
	}
	return mockTrackDurationMs
}

func fakeTrack(trackID string) model.Track {
	return model.Track{
		TrackID: trackID,
		Title:   fmt.Sprintf("Fake song %s", trackID),
		Artists: []string{"Campbell Lowman"},
		Album: model.Album{
			Name:   "Fake album",
			Images: []model.Image{{URL: "Not an image link"}},
		},
		DurationMs: mockTrackDurationMs,
	}
}
