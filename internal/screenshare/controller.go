// Package screenshare implements the screen-share lifecycle controller: it
// requests a capture stream from a capture.Platform, turns every platform
// failure into a small set of observable states, exposes the stream's
// metadata while it is active, and releases the stream on every exit path.
//
// The controller owns at most one stream. Every way out of a session
// (Stop, the platform ending the track, a failed attempt, Close) goes
// through the same cleanup routine, which stops the tracks, detaches the
// sink and clears the metadata.
package screenshare

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/capture"
)

// Sink is the presentation surface a live stream is attached to. The
// controller only ever sets or clears the source; nil means detached.
type Sink interface {
	SetSource(s capture.Stream)
}

// Observer receives a snapshot after every state change, in transition
// order. Observers must not call Start, Stop or Close synchronously.
type Observer interface {
	StateChanged(s Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) StateChanged(s Snapshot) { f(s) }

type nopSink struct{}

func (nopSink) SetSource(capture.Stream) {}

type Controller struct {
	platform    capture.Platform
	sink        Sink
	logger      *zap.SugaredLogger
	constraints capture.Constraints
	now         func() time.Time

	mu           sync.Mutex
	status       Status
	metadata     Metadata
	errorMessage string
	failure      Failure
	endedBy      EndReason
	stream       capture.Stream
	unsubscribe  func()
	startedAt    time.Time
	generation   uint64
	inFlight     bool
	closed       bool

	// notifyMu serialises observer delivery so snapshots arrive in the
	// order the transitions happened. Lock order: mu, then notifyMu.
	notifyMu  sync.Mutex
	observers []Observer
}

// NewController returns an idle controller. A nil sink is replaced by one
// that discards the stream.
func NewController(platform capture.Platform, sink Sink, logger *zap.SugaredLogger) *Controller {
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		platform:    platform,
		sink:        sink,
		logger:      logger.Named("screenshare"),
		constraints: capture.DefaultConstraints(),
		now:         time.Now,
		status:      Idle,
	}
}

// AddObserver registers o for future state changes.
func (c *Controller) AddObserver(o Observer) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observers = append(c.observers, o)
}

// Supported queries the platform for display-capture support. It is not
// cached.
func (c *Controller) Supported() bool {
	return c.platform.Supported()
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	snap.IsSupported = c.Supported()
	return snap
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start releases any owned session and asks the platform for a new stream.
// It blocks until the platform settles the request or ctx is done. Start
// never fails: every outcome is reflected in the controller's state.
//
// A request that settles after a later Start, Stop or Close is discarded
// and its stream, if any, is stopped.
func (c *Controller) Start(ctx context.Context) {
	supported := c.Supported()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("Ignoring start on closed controller")
		return
	}
	c.generation++
	gen := c.generation
	hadStream := c.stream != nil
	c.cleanupLocked()
	c.errorMessage = ""
	c.failure = FailureNone
	c.endedBy = EndedByNone

	if !supported {
		c.inFlight = false
		c.status = Unsupported
		c.failure = FailureUnsupported
		c.publishAndUnlock()
		c.logger.Warnw("Display capture is not supported on this platform", "failure", FailureUnsupported)
		return
	}

	c.inFlight = true
	c.status = Requesting
	c.publishAndUnlock()
	if hadStream {
		c.logger.Debug("Released previous stream before new request")
	}

	c.logger.Infow("Requesting display capture",
		"generation", gen,
		"idealFrameRate", c.constraints.Video.IdealFrameRate,
		"audio", c.constraints.Audio)

	stream, err := c.platform.GetDisplayMedia(ctx, c.constraints)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		capture.StopAll(stream)
		c.logger.Debugw("Discarding stale capture result",
			"generation", gen,
			"error", err)
		return
	}
	c.inFlight = false

	if err != nil {
		out := classify(err)
		c.fail(out)
		c.logger.Warnw("Display capture failed",
			"status", out.status,
			"failure", out.failure,
			"error", err)
		return
	}

	if stream == nil {
		c.fail(outcome{Errored, FailureTrackMissing, msgTrackMissing})
		c.logger.Warnw("Display capture returned no stream", "failure", FailureTrackMissing)
		return
	}

	videos := stream.VideoTracks()
	if len(videos) == 0 {
		// Own it briefly so cleanup releases every track it came with.
		c.stream = stream
		c.fail(outcome{Errored, FailureTrackMissing, msgTrackMissing})
		c.logger.Warnw("Display capture returned no video track",
			"streamID", stream.ID(),
			"tracks", len(stream.Tracks()),
			"failure", FailureTrackMissing)
		return
	}

	track := videos[0]
	c.stream = stream
	c.metadata = metadataFromSettings(track.Settings())
	c.startedAt = c.now()
	c.sink.SetSource(stream)
	c.unsubscribe = track.OnEnded(func() { c.handleEnded(stream) })
	c.status = Active
	meta := c.metadata
	c.publishAndUnlock()

	c.logger.Infow("Display capture active",
		"streamID", stream.ID(),
		"displaySurface", derefString(meta.DisplaySurface),
		"width", derefInt(meta.Width),
		"height", derefInt(meta.Height),
		"frameRate", derefFloat(meta.FrameRate))
}

// fail records a failed attempt, cleans up and publishes. Caller must hold
// c.mu; it is released on return.
func (c *Controller) fail(out outcome) {
	c.cleanupLocked()
	c.status = out.status
	c.failure = out.failure
	c.errorMessage = out.message
	c.publishAndUnlock()
}

// Stop ends the owned session, or abandons an in-flight request. With
// neither it does nothing, so repeated calls are harmless.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stream == nil && !c.inFlight {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.inFlight = false
	c.cleanupLocked()
	c.status = Stopped
	c.endedBy = EndedByUser
	c.publishAndUnlock()

	c.logger.Info("Screen share stopped by user")
}

// handleEnded runs when the platform ends the owned track. Events for a
// stream that is no longer owned are ignored.
func (c *Controller) handleEnded(stream capture.Stream) {
	c.mu.Lock()
	if c.stream == nil || c.stream != stream {
		c.mu.Unlock()
		return
	}
	c.unsubscribe = nil
	c.cleanupLocked()
	c.status = Stopped
	c.endedBy = EndedByPlatform
	c.publishAndUnlock()

	c.logger.Infow("Screen share ended by platform", "streamID", stream.ID())
}

// Close tears the controller down: any owned stream is released regardless
// of state and later Start calls are ignored. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	wasLive := c.stream != nil || c.inFlight
	c.inFlight = false
	c.cleanupLocked()
	if wasLive {
		c.status = Stopped
		c.endedBy = EndedByTeardown
	}
	c.publishAndUnlock()

	c.logger.Debug("Controller closed")
}

// cleanupLocked stops every track of the owned stream, drops the
// end-of-stream subscription, detaches the sink and resets the metadata.
// It is safe to call with nothing owned. Track.Stop must not call back into
// the controller. Caller must hold c.mu.
func (c *Controller) cleanupLocked() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	capture.StopAll(c.stream)
	c.stream = nil
	c.sink.SetSource(nil)
	c.metadata = Metadata{}
	c.startedAt = time.Time{}
}

// snapshotLocked copies the observable state. IsSupported is left for the
// caller to fill in outside the lock. Caller must hold c.mu.
func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:   c.status,
		Metadata: c.metadata.Clone(),
		Failure:  c.failure,
		EndedBy:  c.endedBy,
	}
	if c.errorMessage != "" {
		msg := c.errorMessage
		snap.ErrorMessage = &msg
	}
	if c.stream != nil {
		snap.SessionID = c.stream.ID()
		t := c.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// publishAndUnlock snapshots the state, releases c.mu and delivers the
// snapshot to every observer. Caller must hold c.mu.
func (c *Controller) publishAndUnlock() {
	snap := c.snapshotLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	if len(c.observers) == 0 {
		return
	}
	snap.IsSupported = c.Supported()
	for _, o := range c.observers {
		o.StateChanged(snap.Clone())
	}
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
