package screenshare

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/screencheck/screencheck/internal/capture"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  Status
		wantFailure Failure
		wantMessage string
	}{
		{
			name:        "permission denied",
			err:         capture.NewError(capture.ErrNotAllowed, "Permission denied"),
			wantStatus:  Denied,
			wantFailure: FailurePermissionDenied,
			wantMessage: "Screen sharing permission was denied by the browser.",
		},
		{
			name:        "denied matches case-insensitively",
			err:         capture.NewError(capture.ErrNotAllowed, "Permission DENIED by system"),
			wantStatus:  Denied,
			wantFailure: FailurePermissionDenied,
			wantMessage: "Screen sharing permission was denied by the browser.",
		},
		{
			name:        "picker dismissed",
			err:         capture.NewError(capture.ErrNotAllowed, "dismissed"),
			wantStatus:  Cancelled,
			wantFailure: FailureUserCancelled,
			wantMessage: "Screen share picker was closed without selection.",
		},
		{
			name:        "not allowed without message",
			err:         capture.NewError(capture.ErrNotAllowed, ""),
			wantStatus:  Cancelled,
			wantFailure: FailureUserCancelled,
			wantMessage: "Screen share picker was closed without selection.",
		},
		{
			name:        "no source",
			err:         capture.NewError(capture.ErrNotFound, "denied anyway"),
			wantStatus:  Errored,
			wantFailure: FailureSourceNotFound,
			wantMessage: "No screen source was found.",
		},
		{
			name:        "unreadable source",
			err:         capture.NewError(capture.ErrNotReadable, "device busy"),
			wantStatus:  Errored,
			wantFailure: FailureSourceUnreadable,
			wantMessage: "Could not read the selected screen source.",
		},
		{
			name:        "other named error keeps platform message",
			err:         capture.NewError(capture.ErrAbort, "request aborted"),
			wantStatus:  Errored,
			wantFailure: FailureUnknownAcquisition,
			wantMessage: "request aborted",
		},
		{
			name:        "other named error without message",
			err:         capture.NewError(capture.ErrInvalidState, ""),
			wantStatus:  Errored,
			wantFailure: FailureUnknownAcquisition,
			wantMessage: "An unknown error occurred.",
		},
		{
			name:        "wrapped capture error",
			err:         fmt.Errorf("portal: %w", capture.NewError(capture.ErrNotFound, "")),
			wantStatus:  Errored,
			wantFailure: FailureSourceNotFound,
			wantMessage: "No screen source was found.",
		},
		{
			name:        "plain error",
			err:         errors.New("bus went away"),
			wantStatus:  Errored,
			wantFailure: FailureUnknownAcquisition,
			wantMessage: "bus went away",
		},
		{
			name:        "context cancellation",
			err:         context.Canceled,
			wantStatus:  Errored,
			wantFailure: FailureUnknownAcquisition,
			wantMessage: "context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if got.status != tt.wantStatus {
				t.Errorf("status = %v, want %v", got.status, tt.wantStatus)
			}
			if got.failure != tt.wantFailure {
				t.Errorf("failure = %q, want %q", got.failure, tt.wantFailure)
			}
			if got.message != tt.wantMessage {
				t.Errorf("message = %q, want %q", got.message, tt.wantMessage)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	denied := capture.NewError(capture.ErrNotAllowed, "Permission denied")
	dismissed := capture.NewError(capture.ErrNotAllowed, "dismissed")

	for i := 0; i < 50; i++ {
		if got := classify(denied).status; got != Denied {
			t.Fatalf("iteration %d: denied classified as %v", i, got)
		}
		if got := classify(dismissed).status; got != Cancelled {
			t.Fatalf("iteration %d: dismissed classified as %v", i, got)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	for s, name := range statusNames {
		data, err := s.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v): %v", s, err)
		}
		if string(data) != `"`+name+`"` {
			t.Errorf("MarshalJSON(%v) = %s, want %q", s, data, name)
		}

		var back Status
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", data, err)
		}
		if back != s {
			t.Errorf("round trip of %v gave %v", s, back)
		}
	}
}

func TestStatusHasError(t *testing.T) {
	withError := map[Status]bool{Cancelled: true, Denied: true, Errored: true}
	for s := range statusNames {
		if got := s.HasError(); got != withError[s] {
			t.Errorf("%v.HasError() = %v, want %v", s, got, withError[s])
		}
	}
}
