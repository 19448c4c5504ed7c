package session

import (
	"context"
	"errors"

	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/constants"
	"github.com/campbelljlowman/auxparty-api/model"
	"github.com/campbelljlowman/auxparty-api/streaming"
)

type transitionKind int

const (
	advanceTransition transitionKind = iota
	previousTransition
	pauseTransition
)

type transitionRequest struct {
	kind   transitionKind
	reason string
	done   chan struct{}
	err    error
}

// beginLocked claims the transition slot. It returns nil when another transition is in flight.
func (s *Session) beginLocked(kind transitionKind, reason string) *transitionRequest {
	if s.state == StateTransitioning {
		droppedTransitions.Inc()
		slog.Debug("Transition already in flight, dropping trigger", "reason", reason)
		return nil
	}
	s.state = StateTransitioning
	return &transitionRequest{
		kind:   kind,
		reason: reason,
		done:   make(chan struct{}),
	}
}

// submit hands a claimed request to the Run goroutine. Only one request can be claimed at a time,
// so the buffered channel always has room.
func (s *Session) submit(req *transitionRequest) {
	if req == nil {
		return
	}
	s.transitions <- req
}

func (s *Session) wait(ctx context.Context, req *transitionRequest) error {
	if req == nil {
		return nil
	}
	select {
	case <-req.done:
		return req.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestTransition claims and submits without waiting for the result.
func (s *Session) requestTransition(kind transitionKind, reason string) {
	s.mu.Lock()
	req := s.beginLocked(kind, reason)
	s.mu.Unlock()
	s.submit(req)
}

func (s *Session) handleTransition(ctx context.Context, req *transitionRequest) {
	defer func() {
		s.mu.Lock()
		s.state = s.settledStateLocked()
		s.mu.Unlock()
		close(req.done)
		s.logState("Transition finished")
	}()

	switch req.kind {
	case advanceTransition:
		req.err = s.advance(ctx, req.reason)
	case previousTransition:
		req.err = s.previous(ctx)
	case pauseTransition:
		req.err = s.togglePause(ctx)
	}
}

func (s *Session) advance(ctx context.Context, reason string) error {
	s.poller.Stop()
	s.cancelRetry()

	s.mu.Lock()
	if len(s.queue) > 0 {
		next := s.popQueueLocked()
		epoch := s.startEntryLocked(next, s.retireNowPlayingLocked)
		s.mu.Unlock()
		return s.play(ctx, next, epoch, true, reason)
	}
	cursor := s.autoplayCursor
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	next, newCursor := s.autoplay.Next(callCtx, cursor, s.isHeld)
	cancel()

	s.mu.Lock()
	fromQueue := false
	switch {
	case len(s.queue) > 0:
		// Something was enqueued while the playlist was being fetched; it goes first.
		next = s.popQueueLocked()
		fromQueue = true
	case next != nil:
		s.autoplayCursor = newCursor
		s.metrics.NumberOfAutoplayTracks++
	default:
		hadNowPlaying := s.nowPlaying != nil
		s.retireNowPlayingLocked()
		if hadNowPlaying {
			s.resetVotesLocked()
			s.epoch++
		}
		s.publishQueueLocked()
		s.mu.Unlock()
		slog.Info("Nothing left to play, session is idle", "session_id", s.cfg.SessionID, "reason", reason)
		return nil
	}
	epoch := s.startEntryLocked(next, s.retireNowPlayingLocked)
	s.mu.Unlock()

	return s.play(ctx, next, epoch, fromQueue, reason)
}

func (s *Session) previous(ctx context.Context) error {
	s.poller.Stop()
	s.cancelRetry()

	s.mu.Lock()
	if len(s.history) == 0 {
		s.mu.Unlock()
		return ErrNoHistory
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	epoch := s.startEntryLocked(prev, func() {
		if s.nowPlaying != nil {
			s.queue = pushFront(s.queue, s.nowPlaying)
		}
	})
	s.mu.Unlock()

	return s.play(ctx, prev, epoch, true, constants.AdvanceReasonPrevious)
}

func (s *Session) popQueueLocked() *model.TrackEntry {
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next
}

// startEntryLocked makes entry NowPlaying after letting displace deal with the old one, and returns the new epoch.
func (s *Session) startEntryLocked(entry *model.TrackEntry, displace func()) uint64 {
	displace()
	s.nowPlaying = entry
	s.isPlaying = true
	s.userPaused = false
	s.resetVotesLocked()
	s.epoch++
	s.publishQueueLocked()
	return s.epoch
}

// play dispatches the new NowPlaying. On failure the entry goes back to the queue front when requeue is set.
func (s *Session) play(ctx context.Context, entry *model.TrackEntry, epoch uint64, requeue bool, reason string) error {
	if err := s.dispatch(ctx, entry.TrackID); err != nil {
		s.revertDispatch(entry, requeue)
		return err
	}
	s.started(entry, epoch, reason)
	return nil
}

// revertDispatch undoes a NowPlaying change the device refused and schedules a retry.
func (s *Session) revertDispatch(entry *model.TrackEntry, requeue bool) {
	dispatchFailures.Inc()

	s.mu.Lock()
	if s.nowPlaying == entry {
		s.nowPlaying = nil
		s.isPlaying = false
		s.epoch++
		if requeue {
			s.queue = pushFront(s.queue, entry)
		}
	}
	s.publishQueueLocked()
	s.mu.Unlock()

	s.scheduleRetry()
}

func (s *Session) started(entry *model.TrackEntry, epoch uint64, reason string) {
	s.retryAttempt = 0
	s.poller.Start(entry.TrackID, epoch)

	s.mu.Lock()
	s.metrics.NumberOfTracksPlayed++
	s.mu.Unlock()

	advancesTotal.WithLabelValues(reason).Inc()
	slog.Info("Now playing", "session_id", s.cfg.SessionID, "track", entry.TrackID, "title", entry.Title, "added_by", entry.AddedBy, "reason", reason)
	s.notifyTrackStarted(entry)
}

func (s *Session) togglePause(ctx context.Context) error {
	s.mu.Lock()
	nowPlaying, playing, userPaused, epoch := s.nowPlaying, s.isPlaying, s.userPaused, s.epoch
	s.mu.Unlock()

	if nowPlaying == nil {
		return ErrNothingPlaying
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if playing {
		s.poller.Stop()
		if err := s.device.Pause(callCtx); err != nil {
			s.poller.Start(nowPlaying.TrackID, epoch)
			return &UpstreamError{Op: "pause", Err: err}
		}

		s.mu.Lock()
		s.isPlaying = false
		s.userPaused = true
		s.publishQueueLocked()
		s.mu.Unlock()
		return nil
	}

	// A pause the device drifted into may have lost the track, so play it again rather than resume.
	if userPaused {
		if err := s.device.Resume(callCtx); err != nil {
			return &UpstreamError{Op: "resume", Err: err}
		}
	} else if err := s.dispatch(ctx, nowPlaying.TrackID); err != nil {
		return err
	}

	s.mu.Lock()
	s.isPlaying = true
	s.userPaused = false
	s.publishQueueLocked()
	s.mu.Unlock()

	s.poller.Start(nowPlaying.TrackID, epoch)
	return nil
}

func (s *Session) dispatch(ctx context.Context, trackID string) error {
	deviceID := s.resolveDevice(ctx)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.device.Play(callCtx, trackID, streaming.PlayOptions{DeviceID: deviceID}); err != nil {
		slog.Warn("Error dispatching track to playback device", "track", trackID, "device", deviceID, "error", err)
		return &UpstreamError{Op: "play", Err: err}
	}
	return nil
}

// resolveDevice returns "" when no device can be found; the device then picks its own default.
func (s *Session) resolveDevice(ctx context.Context) string {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	devices, err := s.device.ListDevices(callCtx)
	if err != nil {
		slog.Warn("Error listing playback devices", "error", err)
		return ""
	}
	return streaming.PickDevice(devices)
}

func (s *Session) scheduleRetry() {
	if s.retryAttempt >= s.cfg.MaxDispatchRetries {
		if s.cfg.MaxDispatchRetries > 0 {
			slog.Warn("Giving up on playback dispatch", "session_id", s.cfg.SessionID, "attempts", s.retryAttempt)
		}
		s.retryAttempt = 0
		return
	}

	delay := s.cfg.retryDelay(s.retryAttempt)
	s.retryAttempt++

	slog.Info("Retrying playback dispatch", "session_id", s.cfg.SessionID, "attempt", s.retryAttempt, "delay", delay)
	s.retryTimer = s.clock.AfterFunc(delay, s.retryAdvance)
}

func (s *Session) retryAdvance() {
	s.mu.Lock()
	if s.nowPlaying != nil {
		s.mu.Unlock()
		return
	}
	req := s.beginLocked(advanceTransition, constants.AdvanceReasonRetry)
	s.mu.Unlock()
	s.submit(req)
}

func (s *Session) cancelRetry() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// pollerEvents keeps the poller callbacks off Session's exported API.
type pollerEvents struct {
	s *Session
}

func (e pollerEvents) TrackEnded(epoch uint64) {
	s := e.s
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	req := s.beginLocked(advanceTransition, constants.AdvanceReasonTrackEnded)
	s.mu.Unlock()
	s.submit(req)
}

func (e pollerEvents) PlaybackDesynced(epoch uint64, reason error) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state == StateTransitioning {
		return
	}

	s.nowPlaying = nil
	s.isPlaying = false
	s.userPaused = false
	s.state = StateIdle
	s.epoch++
	s.metrics.NumberOfDesyncs++
	desyncsTotal.Inc()
	s.resetVotesLocked()
	s.publishQueueLocked()

	if !errors.Is(reason, errNoActiveItem) {
		slog.Warn("Playback desynced, session is idle", "session_id", s.cfg.SessionID, "error", reason)
	} else {
		slog.Info("Playback desynced, session is idle", "session_id", s.cfg.SessionID)
	}
}

func (e pollerEvents) PlaybackDrifted(epoch uint64, observedTrackID string) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state == StateTransitioning {
		return
	}

	s.isPlaying = false
	s.userPaused = false
	driftsTotal.Inc()
	s.publishQueueLocked()
	slog.Info("Playback drifted to another track, stopped watching", "session_id", s.cfg.SessionID, "observed", observedTrackID)
}
