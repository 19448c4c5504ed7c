package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/constants"
	"github.com/campbelljlowman/auxparty-api/model"
	"github.com/campbelljlowman/auxparty-api/streaming"
	"github.com/campbelljlowman/auxparty-api/voter"
)

type State int

const (
	StateIdle State = iota
	StatePlaying
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	}
	return "unknown"
}

// SnapshotObserver is told about every queue snapshot. Sequence increases with every snapshot.
type SnapshotObserver interface {
	OnSnapshot(ctx context.Context, sessionID string, sequence uint64, state model.QueueState)
}

// PlayObserver is told about every track the device accepted.
type PlayObserver interface {
	OnTrackStarted(ctx context.Context, sessionID string, entry *model.TrackEntry, startedAt time.Time)
}

type Option func(*Session)

func WithClock(clk clock.Clock) Option {
	return func(s *Session) { s.clock = clk }
}

func WithPoller(poller Poller) Option {
	return func(s *Session) { s.poller = poller }
}

func WithSnapshotObserver(observer SnapshotObserver) Option {
	return func(s *Session) { s.snapshotObservers = append(s.snapshotObservers, observer) }
}

func WithPlayObserver(observer PlayObserver) Option {
	return func(s *Session) { s.playObservers = append(s.playObservers, observer) }
}

// Session is the whole shared queue aggregate. One mutex guards all of its mutable state, and every
// transition of NowPlaying runs on the Run goroutine.
type Session struct {
	cfg               Config
	device            streaming.PlaybackDevice
	catalog           streaming.Catalog
	autoplay          *AutoplaySource
	clock             clock.Clock
	poller            Poller
	hub               *Hub
	snapshotObservers []SnapshotObserver
	playObservers     []PlayObserver

	transitions chan *transitionRequest

	mu             sync.Mutex
	queue          []*model.TrackEntry
	nowPlaying     *model.TrackEntry
	isPlaying      bool
	userPaused     bool
	history        []*model.TrackEntry
	votes          *voter.Ledger
	autoplayCursor int
	state          State
	epoch          uint64
	sequence       uint64
	metrics        *Metrics

	// Only touched by the Run goroutine.
	retryTimer   *clock.Timer
	retryAttempt int
}

func NewSession(cfg Config, device streaming.PlaybackDevice, catalog streaming.Catalog, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:         cfg,
		device:      device,
		catalog:     catalog,
		autoplay:    NewAutoplaySource(catalog, cfg.FallbackPlaylistID),
		clock:       clock.New(),
		hub:         NewHub(cfg.SubscriberBuffer),
		transitions: make(chan *transitionRequest, 1),
		queue:       []*model.TrackEntry{},
		votes:       voter.NewLedger(),
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poller == nil {
		s.poller = NewDevicePoller(device, s.clock, pollerEvents{s}, cfg)
	}
	s.metrics = newMetrics(cfg.SessionID, s.clock.Now())
	return s, nil
}

func (s *Session) ID() string {
	return s.cfg.SessionID
}

// Run processes transitions until ctx is done.
func (s *Session) Run(ctx context.Context) {
	slog.Info("Session scheduler started", "session_id", s.cfg.SessionID)
	for {
		select {
		case <-ctx.Done():
			s.cancelRetry()
			s.poller.Stop()
			slog.Info("Session scheduler stopped", "session_id", s.cfg.SessionID)
			return
		case req := <-s.transitions:
			s.handleTransition(ctx, req)
		}
	}
}

// Close stops the poller, disconnects subscribers and stamps the end of the session.
func (s *Session) Close() {
	s.poller.Stop()
	s.hub.Close()

	s.mu.Lock()
	s.metrics.EndedAt = s.clock.Now()
	s.mu.Unlock()
}

func (s *Session) GetQueueState() model.QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// GetHistory returns played entries, most recent first.
func (s *Session) GetHistory() []*model.TrackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]*model.TrackEntry, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		history = append(history, s.history[i])
	}
	return history
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *s.metrics
	m.voterSet = nil
	return m
}

// Subscribe returns a channel that first yields the current snapshot and every non-zero tally.
func (s *Session) Subscribe() (string, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	initial := []Event{{Name: constants.QueueUpdateEvent, Data: s.snapshotLocked()}}
	for _, tally := range s.votes.Tallies() {
		initial = append(initial, Event{Name: constants.VoteUpdateEvent, Data: tally})
	}
	return s.hub.Subscribe(initial...)
}

func (s *Session) Unsubscribe(id string) {
	s.hub.Unsubscribe(id)
}

// AddToQueue appends a track. A track already held by the session is rejected unless force is set.
// If nothing is playing the call waits for playback to start.
func (s *Session) AddToQueue(ctx context.Context, addedBy, trackID string, force bool) (*model.TrackEntry, error) {
	addedBy = strings.TrimSpace(addedBy)
	trackID = strings.TrimSpace(trackID)
	if addedBy == "" || trackID == "" {
		return nil, ErrMissingField
	}

	callCtx, cancel := s.callContext(ctx)
	track, err := s.catalog.GetTrack(callCtx, trackID)
	cancel()
	if err != nil {
		return nil, &UpstreamError{Op: "get track", Err: err}
	}

	entry := &model.TrackEntry{AddedBy: addedBy, Track: *track}

	s.mu.Lock()
	if !force {
		if location := s.locateLocked(entry.TrackID); location != "" {
			s.mu.Unlock()
			return nil, &ConflictError{TrackID: entry.TrackID, Location: location}
		}
	}
	s.queue = append(s.queue, entry)
	s.metrics.NumberOfTracksAdded++
	s.publishQueueLocked()

	var req *transitionRequest
	if s.nowPlaying == nil {
		req = s.beginLocked(advanceTransition, constants.AdvanceReasonEnqueue)
	}
	s.mu.Unlock()

	slog.Info("Track added to queue", "track", entry.TrackID, "added_by", addedBy, "force", force)

	if req != nil {
		s.submit(req)
		if err := s.wait(ctx, req); err != nil {
			slog.Warn("Playback did not start after enqueue", "track", entry.TrackID, "error", err)
		}
	}
	return entry, nil
}

func (s *Session) RemoveFromQueue(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed bool
	s.queue, removed = removeTrack(s.queue, trackID)
	if removed {
		s.clearTrackVotesLocked(trackID)
	}
	s.publishQueueLocked()
}

func (s *Session) ReorderQueue(order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = reorderQueue(s.queue, order)
	s.publishQueueLocked()
}

// Vote toggles voterID's vote and returns the track's tally. A tally that reaches its threshold
// triggers the action and is reported as zero.
func (s *Session) Vote(kind voter.VoteKind, trackID, voterID string) (int, error) {
	trackID = strings.TrimSpace(trackID)
	voterID = strings.TrimSpace(voterID)
	if trackID == "" || voterID == "" {
		return 0, ErrMissingField
	}

	s.mu.Lock()
	count := s.votes.Toggle(kind, trackID, voterID)
	s.metrics.recordVote(voterID)
	votesTotal.WithLabelValues(string(kind)).Inc()

	var skip *transitionRequest
	if count >= s.thresholdFor(kind) {
		switch kind {
		case voter.RemoveVote:
			s.queue, _ = removeTrack(s.queue, trackID)
			s.clearTrackVotesLocked(trackID)
			if s.cfg.RemoveVoteSkipsNowPlaying && s.nowPlaying != nil && s.nowPlaying.TrackID == trackID {
				skip = s.beginLocked(advanceTransition, constants.AdvanceReasonRemoveVote)
			}
		case voter.PromoteVote:
			s.queue, _ = promoteTrack(s.queue, trackID)
			s.votes.Clear(voter.PromoteVote, trackID)
			s.publishVoteLocked(model.VoteUpdate{Kind: string(kind), TrackID: trackID})
		}
		slog.Info("Vote threshold reached", "kind", kind, "track", trackID)
		count = 0
		s.publishQueueLocked()
	} else {
		s.publishVoteLocked(model.VoteUpdate{Kind: string(kind), TrackID: trackID, Votes: count})
		s.publishQueueLocked()
	}
	s.mu.Unlock()

	if skip != nil {
		s.submit(skip)
	}
	return count, nil
}

func (s *Session) Search(ctx context.Context, query string) ([]model.Track, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	tracks, err := s.catalog.Search(callCtx, query)
	if err != nil {
		return nil, &UpstreamError{Op: "search", Err: err}
	}
	if len(tracks) > constants.SearchResultLimit {
		tracks = tracks[:constants.SearchResultLimit]
	}
	return tracks, nil
}

// Skip advances to the next track. It is a no-op while another transition is in flight.
func (s *Session) Skip(ctx context.Context) error {
	s.mu.Lock()
	req := s.beginLocked(advanceTransition, constants.AdvanceReasonSkip)
	s.mu.Unlock()

	s.submit(req)
	return s.wait(ctx, req)
}

// Previous replays the most recently played entry and puts the current one back at the queue front.
func (s *Session) Previous(ctx context.Context) error {
	s.mu.Lock()
	if len(s.history) == 0 {
		s.mu.Unlock()
		return ErrNoHistory
	}
	req := s.beginLocked(previousTransition, constants.AdvanceReasonPrevious)
	s.mu.Unlock()

	s.submit(req)
	return s.wait(ctx, req)
}

func (s *Session) TogglePause(ctx context.Context) error {
	s.mu.Lock()
	if s.nowPlaying == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	req := s.beginLocked(pauseTransition, "")
	s.mu.Unlock()

	s.submit(req)
	return s.wait(ctx, req)
}

func (s *Session) thresholdFor(kind voter.VoteKind) int {
	if kind == voter.PromoteVote {
		return s.cfg.PromoteVoteThreshold
	}
	return s.cfg.RemoveVoteThreshold
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}
