// Package preview holds the presentation sink the controller attaches live
// streams to. The surface never touches the stream's lifecycle; it only
// records what is attached so observers can describe or play it back.
package preview

import (
	"sync"
	"time"

	"github.com/screencheck/screencheck/internal/capture"
)

// nodeStream is implemented by streams backed by a PipeWire node.
type nodeStream interface {
	NodeID() uint32
}

// Info describes the stream currently attached to a Surface.
type Info struct {
	Attached    bool      `json:"attached"`
	StreamID    string    `json:"streamId,omitempty"`
	VideoTracks int       `json:"videoTracks,omitempty"`
	NodeID      *uint32   `json:"pipewireNode,omitempty"`
	AttachedAt  time.Time `json:"attachedAt,omitzero"`
}

// Surface is a concurrency-safe screenshare.Sink.
type Surface struct {
	mu         sync.RWMutex
	source     capture.Stream
	attachedAt time.Time
	attaches   int
	detaches   int
	onChange   func(Info)
}

func NewSurface() *Surface {
	return &Surface{}
}

// OnChange registers fn to be called with the new Info whenever the source
// changes. It replaces any earlier registration.
func (s *Surface) OnChange(fn func(Info)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetSource attaches stream, or detaches when stream is nil. Setting the
// same source again is a no-op.
func (s *Surface) SetSource(stream capture.Stream) {
	s.mu.Lock()
	if s.source == stream {
		s.mu.Unlock()
		return
	}
	s.source = stream
	if stream != nil {
		s.attachedAt = time.Now()
		s.attaches++
	} else {
		s.attachedAt = time.Time{}
		s.detaches++
	}
	info := s.infoLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(info)
	}
}

// Source returns the attached stream, or nil.
func (s *Surface) Source() capture.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Info describes the current attachment.
func (s *Surface) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoLocked()
}

// Counts returns how many times a stream was attached and detached.
func (s *Surface) Counts() (attaches, detaches int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attaches, s.detaches
}

func (s *Surface) infoLocked() Info {
	if s.source == nil {
		return Info{}
	}
	info := Info{
		Attached:    true,
		StreamID:    s.source.ID(),
		VideoTracks: len(s.source.VideoTracks()),
		AttachedAt:  s.attachedAt,
	}
	if ns, ok := s.source.(nodeStream); ok {
		id := ns.NodeID()
		info.NodeID = &id
	}
	return info
}
