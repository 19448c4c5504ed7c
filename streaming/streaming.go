package streaming

import (
	"context"
	"errors"

	"github.com/campbelljlowman/auxparty-api/model"
)

var ErrTrackNotFound = errors.New("track not found")

type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// PlaybackStatus is what the device reports about its current item.
// CurrentTrackID is empty when the device has nothing loaded.
type PlaybackStatus struct {
	IsPlaying      bool
	CurrentTrackID string
	ProgressMs     int
	DurationMs     int
	Device         *Device
}

type PlayOptions struct {
	DeviceID   string
	PositionMs int
}

type PlaybackDevice interface {
	Play(ctx context.Context, trackID string, opts PlayOptions) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Status(ctx context.Context) (*PlaybackStatus, error)
	ListDevices(ctx context.Context) ([]Device, error)
}

type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (*model.Track, error)
	GetPlaylistPage(ctx context.Context, playlistID string, offset int) ([]model.Track, error)
	Search(ctx context.Context, query string) ([]model.Track, error)
}

type StreamingService interface {
	PlaybackDevice
	Catalog
}

// PickDevice prefers the active device, then the first listed one. It returns "" when there are none.
func PickDevice(devices []Device) string {
	for _, device := range devices {
		if device.Active {
			return device.ID
		}
	}
	if len(devices) > 0 {
		return devices[0].ID
	}
	return ""
}
