package portal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/capture"
)

func TestRequestPath(t *testing.T) {
	got := requestPath(escapeSender(":1.42"), "screencheck_req_7")
	want := dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/screencheck_req_7")
	if got != want {
		t.Errorf("requestPath = %q, want %q", got, want)
	}
	if !got.IsValid() {
		t.Errorf("%q is not a valid object path", got)
	}
}

func TestResponseError(t *testing.T) {
	tests := []struct {
		code uint32
		want capture.ErrorName
	}{
		{0, ""},
		{1, capture.ErrNotAllowed},
		{2, capture.ErrAbort},
		{7, capture.ErrAbort},
	}
	for _, tt := range tests {
		err := responseError(tt.code)
		if tt.want == "" {
			if err != nil {
				t.Errorf("responseError(%d) = %v, want nil", tt.code, err)
			}
			continue
		}
		if got := capture.NameOf(err); got != tt.want {
			t.Errorf("responseError(%d) name = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestCallError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want capture.ErrorName
	}{
		{"access denied", dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}, capture.ErrNotAllowed},
		{"portal not allowed", &dbus.Error{Name: "org.freedesktop.portal.Error.NotAllowed"}, capture.ErrNotAllowed},
		{"no portal", dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}, capture.ErrNotSupported},
		{"old portal", dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownMethod"}, capture.ErrNotSupported},
		{"other dbus error", dbus.Error{Name: "org.freedesktop.DBus.Error.Failed"}, ""},
		{"plain error", errors.New("broken pipe"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := callError("Start", tt.err)
			if got := capture.NameOf(err); got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
			if tt.want == "" && dbusErrorName(err) != dbusErrorName(tt.err) {
				t.Errorf("unclassified error should wrap the original, got %v", err)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	results := map[string]dbus.Variant{"session_handle": dbus.MakeVariant("/org/freedesktop/portal/desktop/session/1_42/s1")}
	code, got, err := parseResponse([]interface{}{uint32(0), results})
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 || len(got) != 1 {
		t.Errorf("parseResponse = %d, %v", code, got)
	}

	bad := [][]interface{}{
		nil,
		{uint32(0)},
		{"0", results},
		{uint32(0), "results"},
	}
	for _, body := range bad {
		if _, _, err := parseResponse(body); err == nil {
			t.Errorf("parseResponse(%v) should fail", body)
		}
	}
}

func TestSessionHandle(t *testing.T) {
	const path = "/org/freedesktop/portal/desktop/session/1_42/s1"
	for _, v := range []dbus.Variant{dbus.MakeVariant(path), dbus.MakeVariant(dbus.ObjectPath(path))} {
		got, err := sessionHandle(map[string]dbus.Variant{"session_handle": v})
		if err != nil {
			t.Fatal(err)
		}
		if got != path {
			t.Errorf("sessionHandle = %q, want %q", got, path)
		}
	}

	_, err := sessionHandle(map[string]dbus.Variant{})
	if capture.NameOf(err) != capture.ErrInvalidState {
		t.Errorf("missing handle error = %v", err)
	}
}

func streamEntry(node uint32, props map[string]dbus.Variant) []interface{} {
	return []interface{}{node, props}
}

func TestParseStreams(t *testing.T) {
	v := dbus.MakeVariant([][]interface{}{
		streamEntry(47, map[string]dbus.Variant{
			"size":        dbus.MakeVariant([]interface{}{int32(2560), int32(1440)}),
			"source_type": dbus.MakeVariant(sourceWindow),
		}),
		streamEntry(48, map[string]dbus.Variant{}),
	})

	infos, err := parseStreams(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos) = %d, want 2", len(infos))
	}

	first := infos[0]
	if first.node != 47 {
		t.Errorf("node = %d, want 47", first.node)
	}
	if first.width == nil || *first.width != 2560 || first.height == nil || *first.height != 1440 {
		t.Errorf("size = %v x %v, want 2560 x 1440", first.width, first.height)
	}
	if s := displaySurface(first.sourceType); s == nil || *s != "window" {
		t.Errorf("displaySurface = %v, want window", s)
	}

	second := infos[1]
	if second.width != nil || second.height != nil || second.sourceType != nil {
		t.Errorf("missing properties should stay nil: %+v", second)
	}
}

func TestParseStreams_Malformed(t *testing.T) {
	tests := []struct {
		name string
		v    dbus.Variant
	}{
		{"not an array", dbus.MakeVariant("streams")},
		{"short entry", dbus.MakeVariant([][]interface{}{{uint32(1)}})},
		{"bad node", dbus.MakeVariant([][]interface{}{{"1", map[string]dbus.Variant{}}})},
		{"bad size", dbus.MakeVariant([][]interface{}{streamEntry(1, map[string]dbus.Variant{
			"size": dbus.MakeVariant("1920x1080"),
		})})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseStreams(tt.v)
			if capture.NameOf(err) != capture.ErrNotReadable {
				t.Errorf("err = %v, want %s", err, capture.ErrNotReadable)
			}
		})
	}
}

func TestParseStreams_Absent(t *testing.T) {
	infos, err := parseStreams(dbus.Variant{})
	if err != nil || len(infos) != 0 {
		t.Errorf("parseStreams(empty) = %v, %v", infos, err)
	}
}

func TestDisplaySurface(t *testing.T) {
	tests := []struct {
		in   uint32
		want string
	}{
		{sourceMonitor, "monitor"},
		{sourceWindow, "window"},
		{sourceVirtual, "virtual"},
	}
	for _, tt := range tests {
		in := tt.in
		if got := displaySurface(&in); got == nil || *got != tt.want {
			t.Errorf("displaySurface(%d) = %v, want %s", tt.in, got, tt.want)
		}
	}
	unknown := uint32(64)
	if displaySurface(&unknown) != nil || displaySurface(nil) != nil {
		t.Error("unknown source types should map to nil")
	}
}

func TestTrack_EndFiresOnce(t *testing.T) {
	s := &Stream{}
	if !s.init([]streamInfo{{node: 5}}) {
		t.Fatal("init on an open session should succeed")
	}
	track := s.tracks[0]

	calls := 0
	track.OnEnded(func() { calls++ })
	track.end()
	track.end()

	if calls != 1 {
		t.Errorf("ended handler ran %d times, want 1", calls)
	}
	if s.NodeID() != 5 {
		t.Errorf("NodeID = %d, want 5", s.NodeID())
	}
	if len(s.VideoTracks()) != 1 || track.Kind() != capture.KindVideo {
		t.Error("every portal track is a video track")
	}
}

func TestTrack_Unsubscribe(t *testing.T) {
	s := &Stream{}
	s.init([]streamInfo{{node: 5}})
	track := s.tracks[0]

	calls := 0
	unsubscribe := track.OnEnded(func() { calls++ })
	unsubscribe()
	track.end()

	if calls != 0 {
		t.Errorf("unsubscribed handler ran %d times", calls)
	}
}

func TestStream_InitAfterClose(t *testing.T) {
	s := &Stream{closed: true}
	if s.init([]streamInfo{{node: 5}}) {
		t.Error("init should fail once the portal closed the session")
	}
	if len(s.Tracks()) != 0 {
		t.Error("no tracks should be built for a closed session")
	}
}

func TestNew_NoSessionBus(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+filepath.Join(t.TempDir(), "missing-bus"))

	p := New(zap.NewNop().Sugar())
	defer p.Close()

	if p.Supported() {
		t.Error("Supported() = true without a session bus")
	}

	_, err := p.GetDisplayMedia(context.Background(), capture.DefaultConstraints())
	var ce *capture.Error
	if !errors.As(err, &ce) || ce.Name != capture.ErrNotSupported {
		t.Errorf("GetDisplayMedia error = %v, want %s", err, capture.ErrNotSupported)
	}
}
