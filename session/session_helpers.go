package session

import (
	"context"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/constants"
	"github.com/campbelljlowman/auxparty-api/model"
	"github.com/campbelljlowman/auxparty-api/voter"
)

const observerTimeout = 5 * time.Second

func (s *Session) snapshotLocked() model.QueueState {
	queue := slices.Clone(s.queue)
	if queue == nil {
		queue = []*model.TrackEntry{}
	}
	return model.QueueState{
		Queue:      queue,
		NowPlaying: s.nowPlaying,
		IsPlaying:  s.isPlaying,
	}
}

// locateLocked reports where trackID is already held, or "" if it is not.
func (s *Session) locateLocked(trackID string) string {
	if s.nowPlaying != nil && s.nowPlaying.TrackID == trackID {
		return locationNowPlaying
	}
	if indexOfTrack(s.queue, trackID) >= 0 {
		return locationQueue
	}
	if indexOfTrack(s.history, trackID) >= 0 {
		return locationHistory
	}
	return ""
}

func (s *Session) isHeld(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locateLocked(trackID) != ""
}

func (s *Session) publishQueueLocked() {
	s.sequence++
	state := s.snapshotLocked()
	queueLengthGauge.Set(float64(len(s.queue)))
	s.hub.Publish(Event{Name: constants.QueueUpdateEvent, Data: state})

	for _, observer := range s.snapshotObservers {
		go func(observer SnapshotObserver, sequence uint64) {
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			defer cancel()
			observer.OnSnapshot(ctx, s.cfg.SessionID, sequence, state)
		}(observer, s.sequence)
	}
}

func (s *Session) publishVoteLocked(update model.VoteUpdate) {
	s.hub.Publish(Event{Name: constants.VoteUpdateEvent, Data: update})
}

// resetVotesLocked empties both ledgers and zeroes every tally subscribers may be showing.
func (s *Session) resetVotesLocked() {
	for _, cleared := range s.votes.Reset() {
		s.publishVoteLocked(cleared)
	}
}

func (s *Session) clearTrackVotesLocked(trackID string) {
	for _, kind := range []voter.VoteKind{voter.RemoveVote, voter.PromoteVote} {
		if s.votes.Count(kind, trackID) > 0 {
			s.publishVoteLocked(model.VoteUpdate{Kind: string(kind), TrackID: trackID})
		}
	}
	s.votes.ClearTrack(trackID)
}

// retireNowPlayingLocked moves NowPlaying onto the history stack.
func (s *Session) retireNowPlayingLocked() {
	if s.nowPlaying == nil {
		return
	}
	s.history = append(s.history, s.nowPlaying)
	if s.cfg.HistoryLimit > 0 && len(s.history) > s.cfg.HistoryLimit {
		s.history = s.history[len(s.history)-s.cfg.HistoryLimit:]
	}
	s.nowPlaying = nil
	s.isPlaying = false
	s.userPaused = false
}

func (s *Session) settledStateLocked() State {
	if s.nowPlaying == nil {
		return StateIdle
	}
	return StatePlaying
}

func (s *Session) notifyTrackStarted(entry *model.TrackEntry) {
	startedAt := s.clock.Now()
	for _, observer := range s.playObservers {
		go func(observer PlayObserver) {
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			defer cancel()
			observer.OnTrackStarted(ctx, s.cfg.SessionID, entry, startedAt)
		}(observer)
	}
}

func (s *Session) logState(msg string) {
	s.mu.Lock()
	nowPlaying := ""
	if s.nowPlaying != nil {
		nowPlaying = s.nowPlaying.TrackID
	}
	queueLength, historyLength, state := len(s.queue), len(s.history), s.state
	s.mu.Unlock()

	slog.Debug(msg, "session_id", s.cfg.SessionID, "state", state, "now_playing", nowPlaying, "queue_length", queueLength, "history_length", historyLength)
}
