package screenshare

import (
	"time"

	"github.com/screencheck/screencheck/internal/capture"
)

// Metadata describes the active stream as negotiated when capture started.
// Nil fields were not reported by the platform.
type Metadata struct {
	DisplaySurface *string  `json:"displaySurface"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	FrameRate      *float64 `json:"frameRate"`
}

// IsEmpty reports whether no field is set.
func (m Metadata) IsEmpty() bool {
	return m.DisplaySurface == nil && m.Width == nil && m.Height == nil && m.FrameRate == nil
}

// Clone returns a copy whose pointer fields can be mutated independently.
func (m Metadata) Clone() Metadata {
	var c Metadata
	if m.DisplaySurface != nil {
		v := *m.DisplaySurface
		c.DisplaySurface = &v
	}
	if m.Width != nil {
		v := *m.Width
		c.Width = &v
	}
	if m.Height != nil {
		v := *m.Height
		c.Height = &v
	}
	if m.FrameRate != nil {
		v := *m.FrameRate
		c.FrameRate = &v
	}
	return c
}

func metadataFromSettings(s capture.Settings) Metadata {
	return Metadata{
		DisplaySurface: s.DisplaySurface,
		Width:          s.Width,
		Height:         s.Height,
		FrameRate:      s.FrameRate,
	}.Clone()
}

// Snapshot is the observable state of a Controller. Snapshots are copies and
// safe to retain.
type Snapshot struct {
	Status       Status     `json:"status"`
	Metadata     Metadata   `json:"metadata"`
	ErrorMessage *string    `json:"errorMessage"`
	IsSupported  bool       `json:"isSupported"`
	Failure      Failure    `json:"failure,omitempty"`
	EndedBy      EndReason  `json:"endedBy,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Metadata = s.Metadata.Clone()
	if s.ErrorMessage != nil {
		m := *s.ErrorMessage
		c.ErrorMessage = &m
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	return c
}
