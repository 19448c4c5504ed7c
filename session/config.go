package session

import (
	"fmt"
	"math"
	"time"

	"github.com/campbelljlowman/auxparty-api/constants"
)

type Config struct {
	SessionID          string
	FallbackPlaylistID string

	PollInterval      time.Duration
	EndBuffer         time.Duration
	RecoveryCooldown  time.Duration
	CallTimeout       time.Duration
	StartupGraceTicks int

	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	MaxDispatchRetries int

	// HistoryLimit caps the history stack. Zero means unbounded.
	HistoryLimit int

	RemoveVoteThreshold       int
	PromoteVoteThreshold      int
	RemoveVoteSkipsNowPlaying bool

	SubscriberBuffer int
}

func DefaultConfig() Config {
	return Config{
		SessionID:            "main",
		PollInterval:         2 * time.Second,
		EndBuffer:            2 * time.Second,
		RecoveryCooldown:     5 * time.Second,
		CallTimeout:          5 * time.Second,
		StartupGraceTicks:    2,
		RetryBaseDelay:       2 * time.Second,
		RetryMaxDelay:        30 * time.Second,
		MaxDispatchRetries:   5,
		HistoryLimit:         100,
		RemoveVoteThreshold:  constants.DefaultRemoveVoteThreshold,
		PromoteVoteThreshold: constants.DefaultPromoteVoteThreshold,
		SubscriberBuffer:     32,
	}
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.EndBuffer < 0 || c.RecoveryCooldown < 0 {
		return fmt.Errorf("end buffer and recovery cooldown must not be negative")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive, got %v", c.RetryBaseDelay)
	}
	if c.RetryMaxDelay < 0 {
		return fmt.Errorf("retry max delay must not be negative, got %v", c.RetryMaxDelay)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout)
	}
	if c.RemoveVoteThreshold < 1 || c.PromoteVoteThreshold < 1 {
		return fmt.Errorf("vote thresholds must be at least 1")
	}
	if c.HistoryLimit < 0 || c.MaxDispatchRetries < 0 || c.StartupGraceTicks < 0 {
		return fmt.Errorf("history limit, dispatch retries and startup grace must not be negative")
	}
	return nil
}

// retryDelay doubles RetryBaseDelay per attempt, capped at RetryMaxDelay and at the largest Duration.
func (c Config) retryDelay(attempt int) time.Duration {
	delay := c.RetryBaseDelay
	for i := 0; i < attempt; i++ {
		if c.RetryMaxDelay > 0 && delay >= c.RetryMaxDelay {
			break
		}
		if delay > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		delay *= 2
	}
	if c.RetryMaxDelay > 0 && delay > c.RetryMaxDelay {
		return c.RetryMaxDelay
	}
	return delay
}
