package model

type Image struct {
	URL string `json:"url"`
}

type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track is catalog metadata. TrackID is the catalog URI and is the identity used everywhere.
type Track struct {
	TrackID    string   `json:"trackId"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      Album    `json:"album"`
	DurationMs int      `json:"durationMs,omitempty"`
}

// TrackEntry is a track plus the participant that submitted it.
type TrackEntry struct {
	AddedBy string `json:"addedBy"`
	Track
}

type QueueState struct {
	Queue      []*TrackEntry `json:"queue"`
	NowPlaying *TrackEntry   `json:"nowPlaying"`
	IsPlaying  bool          `json:"isPlaying"`
}

type VoteUpdate struct {
	Kind    string `json:"kind"`
	TrackID string `json:"trackId"`
	Votes   int    `json:"votes"`
}
