//go:build linux && !noportal

package capture

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

// fakeBus records the calls made on it and plays the portal's side of the
// exchange when the Screenshot method is called.
type fakeBus struct {
	events []string

	signals  chan<- *dbus.Signal
	respond  func(ch chan<- *dbus.Signal)
	callBody []any
	callErr  error
	lastArgs []any

	removeMatch  int
	removeSignal int
	closes       int
}

func (b *fakeBus) Names() []string { return []string{":1.42"} }

func (b *fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	b.events = append(b.events, "Object "+dest+" "+string(path))
	return &fakeObject{bus: b}
}

func (b *fakeBus) AddMatchSignal(...dbus.MatchOption) error {
	b.events = append(b.events, "AddMatchSignal")
	return nil
}

func (b *fakeBus) RemoveMatchSignal(...dbus.MatchOption) error {
	b.removeMatch++
	return nil
}

func (b *fakeBus) Signal(ch chan<- *dbus.Signal) {
	b.events = append(b.events, "Signal")
	b.signals = ch
}

func (b *fakeBus) RemoveSignal(chan<- *dbus.Signal) { b.removeSignal++ }

func (b *fakeBus) Close() error {
	b.closes++
	return nil
}

type fakeObject struct {
	dbus.BusObject
	bus *fakeBus
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...any) *dbus.Call {
	b := o.bus
	b.events = append(b.events, "Call "+method)
	b.lastArgs = args
	if b.callErr == nil && b.respond != nil && b.signals != nil {
		b.respond(b.signals)
	}
	return &dbus.Call{Method: method, Body: b.callBody, Err: b.callErr}
}

const testHandle = dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/t")

func responseSignal(code uint32, results map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: testHandle,
		Name: portalResponseSignal,
		Body: []any{code, results},
	}
}

func respondWith(sigs ...*dbus.Signal) func(chan<- *dbus.Signal) {
	return func(ch chan<- *dbus.Signal) {
		for _, s := range sigs {
			ch <- s
		}
	}
}

type portalHarness struct {
	bus     *fakeBus
	portal  *dbusPortal
	removed []string
	states  []State
}

func newPortalHarness(bus *fakeBus) *portalHarness {
	h := &portalHarness{bus: bus}
	h.portal = &dbusPortal{
		log:     discard,
		connect: func() (portalBus, error) { return bus, nil },
		token:   func() string { return "t" },
	}
	h.portal.remove = func(path string) error {
		h.removed = append(h.removed, path)
		return os.Remove(path)
	}
	return h
}

func (h *portalHarness) request(ctx context.Context) ([]byte, error) {
	return h.portal.Request(ctx, func(s State) { h.states = append(h.states, s) })
}

func (h *portalHarness) checkCleanup(t *testing.T) {
	t.Helper()
	if h.bus.removeMatch != 1 || h.bus.removeSignal != 1 || h.bus.closes != 1 {
		t.Fatalf("cleanup ran match=%d signal=%d close=%d, want 1 each",
			h.bus.removeMatch, h.bus.removeSignal, h.bus.closes)
	}
}

func writeShot(t *testing.T, name string) (path, uri string) {
	t.Helper()
	path = filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, pngOf(t, 5, 3), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, "file://" + (&url.URL{Path: path}).EscapedPath()
}

func TestPortalRequestSuccess(t *testing.T) {
	path, uri := writeShot(t, "Screenshot from today.png")
	bus := &fakeBus{
		callBody: []any{testHandle},
		respond: respondWith(
			&dbus.Signal{Name: "org.freedesktop.DBus.NameAcquired", Body: []any{":1.42"}},
			responseSignal(0, map[string]dbus.Variant{"uri": dbus.MakeVariant(uri)}),
		),
	}
	h := newPortalHarness(bus)

	data, err := h.request(context.Background())
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("no data")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("temporary file not removed: %v", err)
	}
	if len(h.removed) != 1 || h.removed[0] != path {
		t.Fatalf("removed %v, want [%s]", h.removed, path)
	}

	wantEvents := []string{
		"AddMatchSignal",
		"Signal",
		"Object " + portalBusName + " " + string(portalObjectPath),
		"Call " + portalScreenshotCall,
	}
	if !reflect.DeepEqual(bus.events, wantEvents) {
		t.Fatalf("events = %v, want %v", bus.events, wantEvents)
	}
	if want := []State{StateAwaitingSignal, StateFileRead}; !reflect.DeepEqual(h.states, want) {
		t.Fatalf("states = %v, want %v", h.states, want)
	}

	if len(bus.lastArgs) != 2 || bus.lastArgs[0] != "" {
		t.Fatalf("call args = %v", bus.lastArgs)
	}
	opts, _ := bus.lastArgs[1].(map[string]dbus.Variant)
	if v, ok := opts["interactive"]; !ok || v.Value() != false {
		t.Fatalf("interactive option = %v", opts["interactive"])
	}
	h.checkCleanup(t)
}

func TestPortalRequestMissingURIKeepsFile(t *testing.T) {
	path, _ := writeShot(t, "shot.png")
	bus := &fakeBus{
		callBody: []any{testHandle},
		respond:  respondWith(responseSignal(0, map[string]dbus.Variant{})),
	}
	h := newPortalHarness(bus)

	data, err := h.request(context.Background())
	if data != nil || !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("Request = %d bytes, %v; want ErrRequestRejected", len(data), err)
	}
	if len(h.removed) != 0 {
		t.Fatalf("removed %v, want nothing", h.removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should still exist: %v", err)
	}
	h.checkCleanup(t)
}

func TestPortalRequestFailures(t *testing.T) {
	tests := []struct {
		name    string
		bus     *fakeBus
		wantErr error
	}{
		{
			name: "cancelled by user",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: respondWith(responseSignal(1, nil))},
			wantErr: ErrRequestRejected,
		},
		{
			name: "other response code",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: respondWith(responseSignal(2, map[string]dbus.Variant{"uri": dbus.MakeVariant("file:///tmp/x.png")}))},
			wantErr: ErrRequestRejected,
		},
		{
			name: "malformed body",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: respondWith(&dbus.Signal{Name: portalResponseSignal, Body: []any{uint32(0)}})},
			wantErr: ErrRequestRejected,
		},
		{
			name: "uri not a string",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: respondWith(responseSignal(0, map[string]dbus.Variant{"uri": dbus.MakeVariant(uint32(7))}))},
			wantErr: ErrRequestRejected,
		},
		{
			name: "uri without file scheme",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: respondWith(responseSignal(0, map[string]dbus.Variant{"uri": dbus.MakeVariant("https://example.com/x.png")}))},
			wantErr: ErrRequestRejected,
		},
		{
			name: "unreadable file",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: respondWith(responseSignal(0, map[string]dbus.Variant{"uri": dbus.MakeVariant("file:///nonexistent/zoomify/shot.png")}))},
			wantErr: ErrTemporaryFileUnreadable,
		},
		{
			name:    "call rejected",
			bus:     &fakeBus{callErr: errors.New("org.freedesktop.DBus.Error.ServiceUnknown")},
			wantErr: ErrRequestRejected,
		},
		{
			name:    "reply is not a handle",
			bus:     &fakeBus{callBody: []any{uint32(3)}},
			wantErr: ErrRequestRejected,
		},
		{
			name:    "empty reply",
			bus:     &fakeBus{callBody: nil},
			wantErr: ErrRequestRejected,
		},
		{
			name:    "reply with extra values",
			bus:     &fakeBus{callBody: []any{testHandle, uint32(0)}},
			wantErr: ErrRequestRejected,
		},
		{
			name:    "reply is an invalid path",
			bus:     &fakeBus{callBody: []any{dbus.ObjectPath("request/relative")}},
			wantErr: ErrRequestRejected,
		},
		{
			name: "bus closed while waiting",
			bus: &fakeBus{callBody: []any{testHandle},
				respond: func(ch chan<- *dbus.Signal) { close(ch) }},
			wantErr: ErrBusConnectionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newPortalHarness(tt.bus)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			data, err := h.request(ctx)
			if data != nil {
				t.Fatalf("got %d bytes, want none", len(data))
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			h.checkCleanup(t)
		})
	}
}

func TestPortalRequestEmptyFileIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	bus := &fakeBus{
		callBody: []any{testHandle},
		respond:  respondWith(responseSignal(0, map[string]dbus.Variant{"uri": dbus.MakeVariant("file://" + path)})),
	}
	h := newPortalHarness(bus)

	if _, err := h.request(context.Background()); !errors.Is(err, ErrTemporaryFileUnreadable) {
		t.Fatalf("err = %v, want ErrTemporaryFileUnreadable", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty file not removed: %v", err)
	}
}

func TestPortalRequestBusUnavailable(t *testing.T) {
	p := &dbusPortal{
		log:     discard,
		connect: func() (portalBus, error) { return nil, errors.New("dbus: DBUS_SESSION_BUS_ADDRESS not set") },
		token:   handleToken,
		remove:  os.Remove,
	}
	_, err := p.Request(context.Background(), func(State) {})
	if !errors.Is(err, ErrBusConnectionFailed) || !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrBusConnectionFailed", err)
	}
}

func TestPortalRequestHonoursCancellation(t *testing.T) {
	bus := &fakeBus{callBody: []any{testHandle}}
	h := newPortalHarness(bus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.request(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	h.checkCleanup(t)
}

func TestURIPath(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr error
	}{
		{"file:///tmp/shot.png", "/tmp/shot.png", nil},
		{"file:///home/u/Pictures/Screenshot%20from%202024.png", "/home/u/Pictures/Screenshot from 2024.png", nil},
		{"file://", "", ErrTemporaryFileUnreadable},
		{"file:///bad%zz", "", ErrTemporaryFileUnreadable},
		{"/tmp/shot.png", "", ErrRequestRejected},
	}
	for _, tt := range tests {
		got, err := uriPath(tt.uri)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("uriPath(%q) err = %v, want %v", tt.uri, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("uriPath(%q) = %q, %v; want %q", tt.uri, got, err, tt.want)
		}
	}
}

func TestHandleTokenIsPathElement(t *testing.T) {
	token := handleToken()
	if strings.ContainsFunc(token, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) {
		t.Fatalf("token %q is not a valid object path element", token)
	}
	if got := requestPath(":1.42", token); !got.IsValid() {
		t.Fatalf("request path %q is invalid", got)
	}
}
