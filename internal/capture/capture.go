// Package capture defines the platform surface the screen-share controller
// talks to: a display-capture acquisition primitive, the streams and tracks
// it returns, and the error vocabulary platforms report failures with.
//
// Implementations live in sub-packages (portal for the Linux desktop portal,
// mock for scripted in-memory streams).
package capture

import "context"

// Kind identifies the media type of a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Platform is a display-capture backend.
type Platform interface {
	// Supported reports whether the platform exposes a display-capture
	// primitive right now. It must not prompt the user.
	Supported() bool

	// GetDisplayMedia asks the user to pick a screen source and returns the
	// resulting stream. It blocks until the user accepts, rejects or
	// dismisses the picker, or ctx is done. Failures are reported as *Error
	// whenever the platform can classify them. A nil error comes with a
	// non-nil stream.
	GetDisplayMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live capture stream made of one or more tracks.
type Stream interface {
	ID() string
	Tracks() []Track
	VideoTracks() []Track
}

// Track is a single media channel within a Stream.
type Track interface {
	ID() string
	Kind() Kind

	// Settings returns the currently negotiated settings.
	Settings() Settings

	// Stop releases the underlying source. Stopping an already stopped
	// track is a no-op, and a stopped track never fires its ended callbacks.
	Stop()

	// OnEnded registers fn to run once when the platform ends the track
	// (for example the user revoked sharing from the native UI). The
	// returned function removes the registration.
	OnEnded(fn func()) (unsubscribe func())
}

// Settings holds the values a track negotiated with the platform. Nil
// fields were not reported.
type Settings struct {
	DisplaySurface *string
	Width          *int
	Height         *int
	FrameRate      *float64
}

// Constraints describes an acquisition request.
type Constraints struct {
	Video VideoConstraints
	Audio bool
}

// VideoConstraints holds the video part of a request.
type VideoConstraints struct {
	// IdealFrameRate is a hint; zero means no preference.
	IdealFrameRate float64
}

// DefaultConstraints is the fixed request used for a screen test: ideal
// 30 fps video and no audio.
func DefaultConstraints() Constraints {
	return Constraints{
		Video: VideoConstraints{IdealFrameRate: 30},
		Audio: false,
	}
}

// StopAll stops every track of s. A nil stream is ignored.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
