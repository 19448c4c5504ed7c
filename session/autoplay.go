package session

import (
	"context"

	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/constants"
	"github.com/campbelljlowman/auxparty-api/model"
	"github.com/campbelljlowman/auxparty-api/streaming"
)

// AutoplaySource picks tracks from the fallback playlist when the queue runs dry.
// The cursor is owned by the session; the source only computes the next pick.
type AutoplaySource struct {
	catalog    streaming.Catalog
	playlistID string
}

func NewAutoplaySource(catalog streaming.Catalog, playlistID string) *AutoplaySource {
	return &AutoplaySource{catalog: catalog, playlistID: playlistID}
}

// Next returns the entry to play and the advanced cursor. Tracks for which held returns true are skipped
// unless every track on the page is held. It returns nil when nothing can be picked.
func (a *AutoplaySource) Next(ctx context.Context, cursor int, held func(trackID string) bool) (*model.TrackEntry, int) {
	if a == nil || a.playlistID == "" {
		return nil, cursor
	}

	tracks, err := a.catalog.GetPlaylistPage(ctx, a.playlistID, 0)
	if err != nil {
		slog.Warn("Error getting fallback playlist", "playlist", a.playlistID, "error", err)
		return nil, cursor
	}
	if len(tracks) == 0 {
		slog.Info("Fallback playlist is empty", "playlist", a.playlistID)
		return nil, cursor
	}

	start := cursor % len(tracks)
	if start < 0 {
		start += len(tracks)
	}

	chosen := start
	for i := 0; i < len(tracks); i++ {
		candidate := (start + i) % len(tracks)
		if held == nil || !held(tracks[candidate].TrackID) {
			chosen = candidate
			break
		}
	}

	entry := &model.TrackEntry{
		AddedBy: constants.AutoplayAddedBy,
		Track:   tracks[chosen],
	}
	return entry, (chosen + 1) % len(tracks)
}
