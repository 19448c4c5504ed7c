package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/model"
)

const snapshotMutexExpiry = 5 * time.Second

func GetRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		// Plain host:port, the way REDIS_URL is usually set.
		options = &redis.Options{Addr: redisURL}
	}

	rc := redis.NewClient(options)
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", options.Addr, err)
	}
	return rc, nil
}

type mirroredSnapshot struct {
	Sequence  uint64           `json:"sequence"`
	UpdatedAt time.Time        `json:"updatedAt"`
	State     model.QueueState `json:"state"`
}

// SnapshotMirror keeps the latest queue snapshot of each session in Redis and publishes every new one,
// so other processes can read the queue without talking to this one.
type SnapshotMirror struct {
	rc  *redis.Client
	rs  *redsync.Redsync
	ttl time.Duration
}

func NewSnapshotMirror(rc *redis.Client, ttl time.Duration) *SnapshotMirror {
	return &SnapshotMirror{
		rc:  rc,
		rs:  redsync.New(goredis.NewPool(rc)),
		ttl: ttl,
	}
}

// OnSnapshot stores state unless a newer sequence is already stored. Observers run concurrently,
// so writes can arrive out of order.
func (m *SnapshotMirror) OnSnapshot(ctx context.Context, sessionID string, sequence uint64, state model.QueueState) {
	snapshotMutex := m.rs.NewMutex(getSnapshotMutexKey(sessionID), redsync.WithExpiry(snapshotMutexExpiry))
	if err := snapshotMutex.LockContext(ctx); err != nil {
		slog.Warn("Error locking session snapshot", "session_id", sessionID, "error", err)
		return
	}
	defer func() {
		if _, err := snapshotMutex.UnlockContext(ctx); err != nil {
			slog.Warn("Error unlocking session snapshot", "session_id", sessionID, "error", err)
		}
	}()

	current, err := m.getSnapshot(ctx, sessionID)
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("Error reading session snapshot", "session_id", sessionID, "error", err)
		return
	}
	if current != nil && current.Sequence >= sequence {
		return
	}

	payload, err := json.Marshal(mirroredSnapshot{Sequence: sequence, UpdatedAt: time.Now(), State: state})
	if err != nil {
		slog.Warn("Error encoding session snapshot", "session_id", sessionID, "error", err)
		return
	}

	if err := m.rc.Set(ctx, getSnapshotKey(sessionID), payload, m.ttl).Err(); err != nil {
		slog.Warn("Error writing session snapshot", "session_id", sessionID, "error", err)
		return
	}
	if err := m.rc.Publish(ctx, GetSnapshotChannel(sessionID), payload).Err(); err != nil {
		slog.Warn("Error publishing session snapshot", "session_id", sessionID, "error", err)
	}
}

// GetSnapshot returns the last mirrored state and its sequence. It returns redis.Nil if nothing was mirrored.
func (m *SnapshotMirror) GetSnapshot(ctx context.Context, sessionID string) (*model.QueueState, uint64, error) {
	snapshot, err := m.getSnapshot(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	return &snapshot.State, snapshot.Sequence, nil
}

func (m *SnapshotMirror) getSnapshot(ctx context.Context, sessionID string) (*mirroredSnapshot, error) {
	result, err := m.rc.Get(ctx, getSnapshotKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}

	var snapshot mirroredSnapshot
	if err := json.Unmarshal([]byte(result), &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

func getSnapshotMutexKey(sessionID string) string {
	return fmt.Sprintf("snapshot-mutex-%s", sessionID)
}

func getSnapshotKey(sessionID string) string {
	return fmt.Sprintf("snapshot-%s", sessionID)
}

func GetSnapshotChannel(sessionID string) string {
	return fmt.Sprintf("snapshots-%s", sessionID)
}
