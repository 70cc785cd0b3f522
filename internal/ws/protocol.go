package ws

import (
	"github.com/screencheck/screencheck/internal/preview"
	"github.com/screencheck/screencheck/internal/screenshare"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgState    MessageType = "state"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the full current state, sent on connect and
// periodically.
type SnapshotPayload struct {
	State   screenshare.Snapshot `json:"state"`
	Preview *preview.Info        `json:"preview,omitempty"`
}

// StatePayload carries every transition since the last flush, oldest
// first. The last entry is the current state.
type StatePayload struct {
	Transitions []screenshare.Snapshot `json:"transitions"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
