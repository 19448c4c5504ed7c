package constants

// AutoplayAddedBy marks entries chosen from the fallback playlist.
const AutoplayAddedBy = "Auto"

const (
	QueueUpdateEvent = "queueUpdate"
	VoteUpdateEvent  = "voteUpdate"
)

const (
	DefaultRemoveVoteThreshold  = 2
	DefaultPromoteVoteThreshold = 2
)

const (
	AdvanceReasonSkip       = "skip"
	AdvanceReasonEnqueue    = "enqueue"
	AdvanceReasonTrackEnded = "track_ended"
	AdvanceReasonRetry      = "retry"
	AdvanceReasonRemoveVote = "remove_vote"
	AdvanceReasonPrevious   = "previous"
)

const (
	SearchResultLimit = 10
	PlaylistPageLimit = 100
)
