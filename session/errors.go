package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoHistory      = errors.New("no previously played tracks")
	ErrNothingPlaying = errors.New("nothing is currently playing")
	ErrMissingField   = errors.New("required field missing")
)

// ConflictError is returned when a track is already held by the session and the add was not forced.
type ConflictError struct {
	TrackID  string
	Location string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("track %s is already in %s", e.TrackID, e.Location)
}

// UpstreamError wraps a failed or timed out call to the catalog or the playback device.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
