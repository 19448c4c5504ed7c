package session

import (
	"golang.org/x/exp/slices"

	"github.com/campbelljlowman/auxparty-api/model"
)

const (
	locationNowPlaying = "nowPlaying"
	locationQueue      = "queue"
	locationHistory    = "history"
)

func indexOfTrack(entries []*model.TrackEntry, trackID string) int {
	return slices.IndexFunc(entries, func(e *model.TrackEntry) bool {
		return e.TrackID == trackID
	})
}

// removeTrack drops every entry with trackID. Forced adds can leave duplicates.
func removeTrack(queue []*model.TrackEntry, trackID string) ([]*model.TrackEntry, bool) {
	newQueue := make([]*model.TrackEntry, 0, len(queue))
	for _, entry := range queue {
		if entry.TrackID != trackID {
			newQueue = append(newQueue, entry)
		}
	}
	return newQueue, len(newQueue) != len(queue)
}

// reorderQueue rebuilds the queue in the given order. Ids not in order are dropped, unknown ids are
// ignored, and each existing entry is used at most once.
func reorderQueue(queue []*model.TrackEntry, order []string) []*model.TrackEntry {
	remaining := slices.Clone(queue)
	newQueue := make([]*model.TrackEntry, 0, len(order))
	for _, trackID := range order {
		i := indexOfTrack(remaining, trackID)
		if i < 0 {
			continue
		}
		newQueue = append(newQueue, remaining[i])
		remaining = slices.Delete(remaining, i, i+1)
	}
	return newQueue
}

// promoteTrack moves the first entry with trackID to the front.
func promoteTrack(queue []*model.TrackEntry, trackID string) ([]*model.TrackEntry, bool) {
	i := indexOfTrack(queue, trackID)
	if i < 0 {
		return queue, false
	}
	entry := queue[i]
	newQueue := make([]*model.TrackEntry, 0, len(queue))
	newQueue = append(newQueue, entry)
	newQueue = append(newQueue, queue[:i]...)
	newQueue = append(newQueue, queue[i+1:]...)
	return newQueue, true
}

func pushFront(queue []*model.TrackEntry, entry *model.TrackEntry) []*model.TrackEntry {
	return append([]*model.TrackEntry{entry}, queue...)
}

func trackIDs(entries []*model.TrackEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.TrackID)
	}
	return ids
}
