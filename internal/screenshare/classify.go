package screenshare

import (
	"errors"
	"strings"

	"github.com/screencheck/screencheck/internal/capture"
)

const (
	msgDenied       = "Screen sharing permission was denied by the browser."
	msgCancelled    = "Screen share picker was closed without selection."
	msgNotFound     = "No screen source was found."
	msgNotReadable  = "Could not read the selected screen source."
	msgUnknown      = "An unknown error occurred."
	msgTrackMissing = "No video track found in the stream."
)

// outcome is the observable result of a failed acquisition.
type outcome struct {
	status  Status
	failure Failure
	message string
}

// classify maps a rejection from the platform onto the controller's
// vocabulary. The first matching rule wins.
func classify(err error) outcome {
	var ce *capture.Error
	if !errors.As(err, &ce) {
		return outcome{Errored, FailureUnknownAcquisition, messageOr(errText(err), msgUnknown)}
	}

	switch ce.Name {
	case capture.ErrNotAllowed:
		if strings.Contains(strings.ToLower(ce.Message), "denied") {
			return outcome{Denied, FailurePermissionDenied, msgDenied}
		}
		return outcome{Cancelled, FailureUserCancelled, msgCancelled}
	case capture.ErrNotFound:
		return outcome{Errored, FailureSourceNotFound, msgNotFound}
	case capture.ErrNotReadable:
		return outcome{Errored, FailureSourceUnreadable, msgNotReadable}
	default:
		return outcome{Errored, FailureUnknownAcquisition, messageOr(ce.Message, msgUnknown)}
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
