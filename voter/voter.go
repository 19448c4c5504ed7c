package voter

import (
	"fmt"
	"sort"

	"github.com/campbelljlowman/auxparty-api/model"
)

type VoteKind string

const (
	RemoveVote  VoteKind = "remove"
	PromoteVote VoteKind = "promote"
)

var validVoteKinds = []VoteKind{RemoveVote, PromoteVote}

var emptyStructValue struct{}

func ParseVoteKind(kind string) (VoteKind, error) {
	for _, k := range validVoteKinds {
		if string(k) == kind {
			return k, nil
		}
	}
	return "", fmt.Errorf("invalid vote kind %q", kind)
}

// Ledger tracks which voters voted for which track, per vote kind.
// It is not safe for concurrent use; the owning session serializes access.
type Ledger struct {
	votes map[VoteKind]map[string]map[string]struct{}
}

func NewLedger() *Ledger {
	l := &Ledger{}
	l.init()
	return l
}

func (l *Ledger) init() {
	l.votes = make(map[VoteKind]map[string]map[string]struct{}, len(validVoteKinds))
	for _, kind := range validVoteKinds {
		l.votes[kind] = make(map[string]map[string]struct{})
	}
}

// Toggle adds voterID to the track's voter set, or removes it if already present, and returns the resulting count.
func (l *Ledger) Toggle(kind VoteKind, trackID, voterID string) int {
	tracks := l.votes[kind]
	voters, exists := tracks[trackID]
	if !exists {
		voters = make(map[string]struct{})
		tracks[trackID] = voters
	}

	if _, voted := voters[voterID]; voted {
		delete(voters, voterID)
	} else {
		voters[voterID] = emptyStructValue
	}

	count := len(voters)
	if count == 0 {
		delete(tracks, trackID)
	}
	return count
}

func (l *Ledger) Count(kind VoteKind, trackID string) int {
	return len(l.votes[kind][trackID])
}

func (l *Ledger) HasVoted(kind VoteKind, trackID, voterID string) bool {
	_, voted := l.votes[kind][trackID][voterID]
	return voted
}

// Clear empties the voter set of one track for one kind.
func (l *Ledger) Clear(kind VoteKind, trackID string) {
	delete(l.votes[kind], trackID)
}

// ClearTrack empties every kind's voter set for a track.
func (l *Ledger) ClearTrack(trackID string) {
	for _, kind := range validVoteKinds {
		delete(l.votes[kind], trackID)
	}
}

// Reset empties the whole ledger and returns a zeroed update for every tally that was non-zero.
func (l *Ledger) Reset() []model.VoteUpdate {
	tallies := l.Tallies()
	for i := range tallies {
		tallies[i].Votes = 0
	}
	l.init()
	return tallies
}

// Tallies returns every non-zero tally, sorted by kind then track.
func (l *Ledger) Tallies() []model.VoteUpdate {
	var tallies []model.VoteUpdate
	for _, kind := range validVoteKinds {
		for trackID, voters := range l.votes[kind] {
			if len(voters) == 0 {
				continue
			}
			tallies = append(tallies, model.VoteUpdate{
				Kind:    string(kind),
				TrackID: trackID,
				Votes:   len(voters),
			})
		}
	}

	sort.SliceStable(tallies, func(i, j int) bool {
		if tallies[i].Kind != tallies[j].Kind {
			return tallies[i].Kind < tallies[j].Kind
		}
		return tallies[i].TrackID < tallies[j].TrackID
	})
	return tallies
}
