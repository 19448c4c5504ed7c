package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/exp/slog"

	"github.com/campbelljlowman/auxparty-api/streaming"
)

var errNoActiveItem = errors.New("device reports no active item")

// Poller watches the device while one track is expected to be playing.
type Poller interface {
	Start(trackID string, epoch uint64)
	Stop()
}

// PollerEvents receives the poller's conclusions. Every event carries the epoch it was started with.
type PollerEvents interface {
	TrackEnded(epoch uint64)
	PlaybackDesynced(epoch uint64, reason error)
	PlaybackDrifted(epoch uint64, observedTrackID string)
}

type DevicePoller struct {
	device streaming.PlaybackDevice
	clock  clock.Clock
	events PollerEvents

	interval         time.Duration
	endBuffer        time.Duration
	recoveryCooldown time.Duration
	callTimeout      time.Duration
	startupGrace     int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDevicePoller(device streaming.PlaybackDevice, clk clock.Clock, events PollerEvents, cfg Config) *DevicePoller {
	return &DevicePoller{
		device:           device,
		clock:            clk,
		events:           events,
		interval:         cfg.PollInterval,
		endBuffer:        cfg.EndBuffer,
		recoveryCooldown: cfg.RecoveryCooldown,
		callTimeout:      cfg.CallTimeout,
		startupGrace:     cfg.StartupGraceTicks,
	}
}

// Start replaces any running watch with one for trackID.
func (p *DevicePoller) Start(trackID string, epoch uint64) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ticker := p.clock.Ticker(p.interval)
	p.cancel = cancel
	p.done = done

	w := &trackWatch{
		poller:  p,
		trackID: trackID,
		epoch:   epoch,
	}
	go func() {
		defer close(done)
		defer ticker.Stop()
		defer p.release(done)
		w.run(ctx, ticker)
	}()
}

// release forgets a watch that reached its own conclusion, unless Stop or Start already replaced it.
func (p *DevicePoller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != done {
		return
	}
	p.cancel()
	p.cancel, p.done = nil, nil
}

// Stop cancels the running watch and waits for it to exit.
func (p *DevicePoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a watch is still polling the device.
func (p *DevicePoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// trackWatch is the state of one poller goroutine.
type trackWatch struct {
	poller  *DevicePoller
	trackID string
	epoch   uint64

	seenExpected   bool
	mismatches     int
	lastProgressMs int
	lastRecovery   time.Time
}

func (w *trackWatch) run(ctx context.Context, ticker *clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.tick(ctx) {
				return
			}
		}
	}
}

// tick returns false once the watch has reached a conclusion.
func (w *trackWatch) tick(ctx context.Context) bool {
	p := w.poller

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	status, err := p.device.Status(callCtx)
	cancel()
	if ctx.Err() != nil {
		return false
	}

	if err != nil || status == nil || status.CurrentTrackID == "" {
		if err == nil {
			err = errNoActiveItem
		}
		slog.Warn("Playback device desynced", "track", w.trackID, "error", err)
		p.events.PlaybackDesynced(w.epoch, err)
		return false
	}

	if status.CurrentTrackID != w.trackID {
		if !w.seenExpected && w.mismatches < p.startupGrace {
			w.mismatches++
			return true
		}
		slog.Warn("Playback device is playing a different track", "expected", w.trackID, "observed", status.CurrentTrackID)
		p.events.PlaybackDrifted(w.epoch, status.CurrentTrackID)
		return false
	}
	w.seenExpected = true

	endBufferMs := int(p.endBuffer / time.Millisecond)
	if status.DurationMs > 0 && status.ProgressMs >= status.DurationMs-endBufferMs {
		p.events.TrackEnded(w.epoch)
		return false
	}

	if !status.IsPlaying {
		// Devices stop at the end of a track with no context, sometimes before we saw the last stretch.
		intervalMs := int(p.interval / time.Millisecond)
		if status.DurationMs > 0 && w.lastProgressMs >= status.DurationMs-endBufferMs-intervalMs {
			p.events.TrackEnded(w.epoch)
			return false
		}
		w.recover(ctx, status)
	}

	w.lastProgressMs = status.ProgressMs
	return true
}

func (w *trackWatch) recover(ctx context.Context, status *streaming.PlaybackStatus) {
	p := w.poller
	now := p.clock.Now()
	if !w.lastRecovery.IsZero() && now.Sub(w.lastRecovery) < p.recoveryCooldown {
		return
	}
	w.lastRecovery = now

	opts := streaming.PlayOptions{PositionMs: status.ProgressMs}
	if status.Device != nil {
		opts.DeviceID = status.Device.ID
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	recoveriesTotal.Inc()
	if err := p.device.Play(callCtx, w.trackID, opts); err != nil {
		slog.Warn("Error resuming paused playback", "track", w.trackID, "error", err)
		return
	}
	slog.Info("Resumed paused playback", "track", w.trackID, "position_ms", status.ProgressMs)
}
