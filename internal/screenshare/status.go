package screenshare

import "encoding/json"

type Status int

const (
	Idle Status = iota
	Requesting
	Active
	Cancelled
	Denied
	Errored
	Stopped
	Unsupported
)

var statusNames = map[Status]string{
	Idle:        "idle",
	Requesting:  "requesting",
	Active:      "active",
	Cancelled:   "cancelled",
	Denied:      "denied",
	Errored:     "error",
	Stopped:     "stopped",
	Unsupported: "unsupported",
}

var statusFromName = map[string]Status{
	"idle":        Idle,
	"requesting":  Requesting,
	"active":      Active,
	"cancelled":   Cancelled,
	"denied":      Denied,
	"error":       Errored,
	"stopped":     Stopped,
	"unsupported": Unsupported,
}

// statusLabels are the human-facing badge texts.
var statusLabels = map[Status]string{
	Idle:        "Ready",
	Requesting:  "Requesting Permission…",
	Active:      "Screen Stream Active",
	Cancelled:   "Picker Cancelled",
	Denied:      "Permission Denied",
	Errored:     "Error",
	Stopped:     "Screen Sharing Stopped",
	Unsupported: "Browser Unsupported",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// Label returns the display text for s.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return s.String()
}

// ParseStatus maps a wire name back to a Status.
func ParseStatus(name string) (Status, bool) {
	s, ok := statusFromName[name]
	return s, ok
}

// HasError reports whether s carries an error message.
func (s Status) HasError() bool {
	return s == Cancelled || s == Denied || s == Errored
}

// Settled reports whether a Start call can leave the controller in s.
func (s Status) Settled() bool {
	return s != Idle && s != Requesting
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// Failure classifies why an attempt did not produce an active stream.
type Failure string

const (
	FailureNone               Failure = ""
	FailureUnsupported        Failure = "unsupported"
	FailurePermissionDenied   Failure = "permission_denied"
	FailureUserCancelled      Failure = "user_cancelled"
	FailureSourceNotFound     Failure = "source_not_found"
	FailureSourceUnreadable   Failure = "source_unreadable"
	FailureTrackMissing       Failure = "track_missing"
	FailureUnknownAcquisition Failure = "unknown_acquisition_failure"
)

// EndReason records what moved an active session to stopped.
type EndReason string

const (
	EndedByNone     EndReason = ""
	EndedByUser     EndReason = "user"
	EndedByPlatform EndReason = "platform"
	EndedByTeardown EndReason = "teardown"
)
