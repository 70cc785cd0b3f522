// Package mock provides a scripted capture.Platform. Each GetDisplayMedia
// call consumes the next queued Outcome (or the fallback once the queue is
// empty), so tests and the server's demo mode can drive every branch of the
// controller without a real desktop.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/screencheck/screencheck/internal/capture"
)

// Outcome scripts the result of one GetDisplayMedia call.
type Outcome struct {
	// Video holds the settings of each video track of the returned stream.
	Video []capture.Settings
	// Audio is the number of audio tracks to include.
	Audio int
	// Err, when set, is returned instead of a stream.
	Err error
	// Delay is how long the picker "stays open" before settling.
	Delay time.Duration
	// Gate, when non-nil, blocks the call until it is closed.
	Gate <-chan struct{}
}

// MonitorOutcome returns a successful outcome with a single monitor track.
func MonitorOutcome(width, height int, frameRate float64) Outcome {
	return Outcome{Video: []capture.Settings{MonitorSettings(width, height, frameRate)}}
}

// MonitorSettings returns fully populated settings for a monitor surface.
func MonitorSettings(width, height int, frameRate float64) capture.Settings {
	surface := "monitor"
	return capture.Settings{
		DisplaySurface: &surface,
		Width:          &width,
		Height:         &height,
		FrameRate:      &frameRate,
	}
}

// FailOutcome returns an outcome that rejects with the given error.
func FailOutcome(name capture.ErrorName, message string) Outcome {
	return Outcome{Err: capture.NewError(name, message)}
}

type Platform struct {
	mu        sync.Mutex
	supported bool
	queue     []Outcome
	fallback  Outcome
	calls     int
	requests  []capture.Constraints
	streams   []*Stream
}

// New returns a supported platform whose fallback outcome is a
// 1920x1080 monitor at 30 fps.
func New() *Platform {
	return &Platform{
		supported: true,
		fallback:  MonitorOutcome(1920, 1080, 30),
	}
}

// SetSupported toggles the capability flag.
func (p *Platform) SetSupported(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.supported = v
}

// SetFallback replaces the outcome used once the queue is empty.
func (p *Platform) SetFallback(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = o
}

// Enqueue appends outcomes consumed in order by subsequent calls.
func (p *Platform) Enqueue(outcomes ...Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, outcomes...)
}

func (p *Platform) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported
}

func (p *Platform) GetDisplayMedia(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	p.mu.Lock()
	p.calls++
	p.requests = append(p.requests, c)
	o := p.fallback
	if len(p.queue) > 0 {
		o = p.queue[0]
		p.queue = p.queue[1:]
	}
	p.mu.Unlock()

	if o.Gate != nil {
		select {
		case <-o.Gate:
		case <-ctx.Done():
			return nil, capture.WrapError(capture.ErrAbort, ctx.Err())
		}
	}
	if o.Delay > 0 {
		t := time.NewTimer(o.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, capture.WrapError(capture.ErrAbort, ctx.Err())
		}
	}

	if o.Err != nil {
		return nil, o.Err
	}

	s := newStream(o)
	p.mu.Lock()
	p.streams = append(p.streams, s)
	p.mu.Unlock()
	return s, nil
}

// Calls returns how many times GetDisplayMedia was invoked.
func (p *Platform) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Requests returns the constraints of every call so far.
func (p *Platform) Requests() []capture.Constraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]capture.Constraints, len(p.requests))
	copy(out, p.requests)
	return out
}

// Streams returns every stream handed out so far, oldest first.
func (p *Platform) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.streams))
	copy(out, p.streams)
	return out
}

// LastStream returns the most recent stream, or nil.
func (p *Platform) LastStream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

// Stream is an in-memory capture.Stream.
type Stream struct {
	id     string
	tracks []*Track
}

func newStream(o Outcome) *Stream {
	s := &Stream{id: uuid.NewString()}
	for _, settings := range o.Video {
		s.tracks = append(s.tracks, newTrack(capture.KindVideo, settings))
	}
	for i := 0; i < o.Audio; i++ {
		s.tracks = append(s.tracks, newTrack(capture.KindAudio, capture.Settings{}))
	}
	return s
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []capture.Track {
	out := make([]capture.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Stream) VideoTracks() []capture.Track {
	var out []capture.Track
	for _, t := range s.tracks {
		if t.kind == capture.KindVideo {
			out = append(out, t)
		}
	}
	return out
}

// AllStopped reports whether every track has been stopped.
func (s *Stream) AllStopped() bool {
	for _, t := range s.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

// Video returns the i-th video track, or nil.
func (s *Stream) Video(i int) *Track {
	n := 0
	for _, t := range s.tracks {
		if t.kind != capture.KindVideo {
			continue
		}
		if n == i {
			return t
		}
		n++
	}
	return nil
}

// Track is an in-memory capture.Track.
type Track struct {
	id       string
	kind     capture.Kind
	settings capture.Settings

	mu       sync.Mutex
	stopped  bool
	ended    bool
	nextID   int
	handlers map[int]func()
}

func newTrack(kind capture.Kind, settings capture.Settings) *Track {
	return &Track{
		id:       uuid.NewString(),
		kind:     kind,
		settings: settings,
		handlers: make(map[int]func()),
	}
}

func (t *Track) ID() string                 { return t.id }
func (t *Track) Kind() capture.Kind         { return t.kind }
func (t *Track) Settings() capture.Settings { return t.settings }

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.handlers = make(map[int]func())
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Subscribers returns the number of live OnEnded registrations.
func (t *Track) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers)
}

// OnEnded registers fn for the end of the track. On a track that has
// already ended, fn runs right away on a new goroutine.
func (t *Track) OnEnded(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended && !t.stopped {
		go fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.handlers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

// End simulates the platform ending the track, as when the user clicks the
// native "Stop sharing" button. Handlers run once, on the caller's
// goroutine; ending a stopped or already ended track does nothing.
func (t *Track) End() {
	t.mu.Lock()
	if t.stopped || t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	handlers := make([]func(), 0, len(t.handlers))
	for _, fn := range t.handlers {
		handlers = append(handlers, fn)
	}
	t.handlers = make(map[int]func())
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}
