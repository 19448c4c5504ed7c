package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	advancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auxparty_advances_total", Help: "Completed track transitions by trigger"},
		[]string{"reason"},
	)
	dispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auxparty_dispatch_failures_total", Help: "Play commands the device rejected or timed out"},
	)
	desyncsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auxparty_desyncs_total", Help: "Times the device reported no active item"},
	)
	driftsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auxparty_drifts_total", Help: "Times the device was playing a different track"},
	)
	recoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auxparty_paused_recoveries_total", Help: "Play commands re-sent to a paused device"},
	)
	votesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auxparty_votes_total", Help: "Vote toggles by kind"},
		[]string{"kind"},
	)
	droppedTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auxparty_dropped_transitions_total", Help: "Transition triggers dropped while another was in flight"},
	)
	droppedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auxparty_dropped_events_total", Help: "Broadcast events dropped for slow subscribers"},
	)
	subscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "auxparty_subscribers", Help: "Connected realtime subscribers"},
	)
	queueLengthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "auxparty_queue_length", Help: "Entries waiting in the queue"},
	)
)

func RegisterMetrics(registerer prometheus.Registerer) {
	registerer.MustRegister(
		advancesTotal,
		dispatchFailures,
		desyncsTotal,
		driftsTotal,
		recoveriesTotal,
		votesTotal,
		droppedTransitions,
		droppedEvents,
		subscribersGauge,
		queueLengthGauge,
	)
}

// Metrics summarises one session's activity. It is written to the database when the session ends.
type Metrics struct {
	SessionID              string    `json:"sessionId"`
	StartedAt              time.Time `json:"startedAt"`
	EndedAt                time.Time `json:"endedAt,omitempty"`
	NumberOfVotes          int       `json:"numberOfVotes"`
	NumberOfVoters         int       `json:"numberOfVoters"`
	NumberOfTracksAdded    int       `json:"numberOfTracksAdded"`
	NumberOfTracksPlayed   int       `json:"numberOfTracksPlayed"`
	NumberOfAutoplayTracks int       `json:"numberOfAutoplayTracks"`
	NumberOfDesyncs        int       `json:"numberOfDesyncs"`
	voterSet               map[string]struct{}
}

func newMetrics(sessionID string, startedAt time.Time) *Metrics {
	return &Metrics{
		SessionID: sessionID,
		StartedAt: startedAt,
		voterSet:  make(map[string]struct{}),
	}
}

func (m *Metrics) recordVote(voterID string) {
	m.NumberOfVotes++
	if _, seen := m.voterSet[voterID]; !seen {
		m.voterSet[voterID] = struct{}{}
		m.NumberOfVoters++
	}
}
