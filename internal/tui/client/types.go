package client

import (
	"encoding/json"

	"github.com/screencheck/screencheck/internal/envinfo"
	"github.com/screencheck/screencheck/internal/preview"
	"github.com/screencheck/screencheck/internal/screenshare"
	"github.com/screencheck/screencheck/internal/ws"
)

// Wire types shared with the server.
type (
	Snapshot        = screenshare.Snapshot
	Metadata        = screenshare.Metadata
	PreviewInfo     = preview.Info
	Environment     = envinfo.Report
	SnapshotPayload = ws.SnapshotPayload
	StatePayload    = ws.StatePayload
	ErrorPayload    = ws.ErrorPayload
	MessageType     = ws.MessageType
)

const (
	MsgSnapshot = ws.MsgSnapshot
	MsgState    = ws.MsgState
	MsgError    = ws.MsgError
)

// WSMessage is the envelope with the payload left undecoded.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}
