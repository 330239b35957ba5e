//go:build linux && !noportal

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/zoomify/zoomify/internal/logging"
)

const portalCompiled = true

const (
	portalBusName         = "org.freedesktop.portal.Desktop"
	portalObjectPath      = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	portalScreenshotCall  = "org.freedesktop.portal.Screenshot.Screenshot"
	portalRequestIface    = "org.freedesktop.portal.Request"
	portalResponseMember  = "Response"
	portalResponseSignal  = portalRequestIface + "." + portalResponseMember
	portalRequestPathBase = "/org/freedesktop/portal/desktop/request/"
)

// Response codes of org.freedesktop.portal.Request.Response.
const (
	responseSuccess   uint32 = 0
	responseCancelled uint32 = 1
)

// portalBus is the part of a session bus connection the requester uses.
// *dbus.Conn implements it.
type portalBus interface {
	Names() []string
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

type dbusPortal struct {
	log     *slog.Logger
	connect func() (portalBus, error)
	token   func() string
	remove  func(string) error
}

func newPortalRequester(l *slog.Logger) portalRequester {
	return &dbusPortal{
		log: l,
		connect: func() (portalBus, error) {
			conn, err := dbus.ConnectSessionBus()
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		token:  handleToken,
		remove: os.Remove,
	}
}

// handleToken returns a token usable as an object path element.
func handleToken() string {
	return "zoomify_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
}

// requestPath predicts the Request object path the portal creates for token.
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(portalRequestPathBase + sender + "/" + token)
}

// Request asks the portal for a non-interactive screenshot and returns the
// PNG it wrote. The file is removed once read.
func (p *dbusPortal) Request(ctx context.Context, observe func(State)) ([]byte, error) {
	bus, err := p.connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusConnectionFailed, err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			p.log.Debug("close session bus", logging.KeyError, err)
		}
	}()

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(portalRequestIface),
		dbus.WithMatchMember(portalResponseMember),
	}
	if err := bus.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("%w: subscribe to portal responses: %w", ErrBusConnectionFailed, err)
	}
	defer func() {
		if err := bus.RemoveMatchSignal(match...); err != nil {
			p.log.Debug("remove portal match rule", logging.KeyError, err)
		}
	}()

	signals := make(chan *dbus.Signal, 8)
	bus.Signal(signals)
	defer bus.RemoveSignal(signals)

	token := p.token()
	var expected dbus.ObjectPath
	if names := bus.Names(); len(names) > 0 {
		expected = requestPath(names[0], token)
	}

	options := map[string]dbus.Variant{
		"handle_token":             dbus.MakeVariant(token),
		"modal":                    dbus.MakeVariant(true),
		"interactive":              dbus.MakeVariant(false),
		"permission_store_checked": dbus.MakeVariant(true),
	}
	call := bus.Object(portalBusName, portalObjectPath).CallWithContext(ctx, portalScreenshotCall, 0, "", options)
	if call.Err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestRejected, portalScreenshotCall, call.Err)
	}
	handle, err := requestHandle(call.Body)
	if err != nil {
		return nil, err
	}
	if expected != "" && handle != expected {
		p.log.Debug("portal returned an unexpected request handle", "handle", handle, "expected", expected)
	}

	observe(StateAwaitingSignal)
	p.log.Debug("awaiting portal response", "handle", handle)

	uri, err := waitForResponse(ctx, signals)
	if err != nil {
		return nil, err
	}

	observe(StateFileRead)
	return p.readTemporaryFile(uri)
}

// requestHandle checks that a Screenshot reply is a single object path.
// Store would convert other values silently.
func requestHandle(body []any) (dbus.ObjectPath, error) {
	if len(body) != 1 {
		return "", fmt.Errorf("%w: reply has %d values", ErrRequestRejected, len(body))
	}
	handle, ok := body[0].(dbus.ObjectPath)
	if !ok || !handle.IsValid() {
		return "", fmt.Errorf("%w: reply %v is not a request handle", ErrRequestRejected, body[0])
	}
	return handle, nil
}

// waitForResponse blocks until a Response signal arrives or ctx is done.
// Signals are matched by name; the bus connection is private to one request.
func waitForResponse(ctx context.Context, signals <-chan *dbus.Signal) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return "", fmt.Errorf("%w: bus closed while awaiting portal response", ErrBusConnectionFailed)
			}
			if sig == nil || sig.Name != portalResponseSignal {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

// parseResponse extracts the screenshot URI from a Response signal body of
// (u response, a{sv} results).
func parseResponse(body []any) (string, error) {
	if len(body) != 2 {
		return "", fmt.Errorf("%w: malformed response with %d values", ErrRequestRejected, len(body))
	}
	code, ok := body[0].(uint32)
	if !ok {
		return "", fmt.Errorf("%w: malformed response code %T", ErrRequestRejected, body[0])
	}
	switch code {
	case responseSuccess:
	case responseCancelled:
		return "", fmt.Errorf("%w: cancelled by the user", ErrRequestRejected)
	default:
		return "", fmt.Errorf("%w: response code %d", ErrRequestRejected, code)
	}

	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return "", fmt.Errorf("%w: malformed results %T", ErrRequestRejected, body[1])
	}
	v, ok := results["uri"]
	if !ok {
		return "", fmt.Errorf("%w: response carries no uri", ErrRequestRejected)
	}
	uri, ok := v.Value().(string)
	if !ok || uri == "" {
		return "", fmt.Errorf("%w: uri is not a string", ErrRequestRejected)
	}
	return uri, nil
}

// uriPath turns a file URI into a local path.
func uriPath(uri string) (string, error) {
	path, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return "", fmt.Errorf("%w: unsupported uri %q", ErrRequestRejected, uri)
	}
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTemporaryFileUnreadable, err)
	}
	if unescaped == "" {
		return "", fmt.Errorf("%w: empty path in %q", ErrTemporaryFileUnreadable, uri)
	}
	return unescaped, nil
}

// readTemporaryFile reads the portal's file and deletes it whether or not
// the read succeeded.
func (p *dbusPortal) readTemporaryFile(uri string) ([]byte, error) {
	path, err := uriPath(uri)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn("remove portal screenshot", "path", path, logging.KeyError, err)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemporaryFileUnreadable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrTemporaryFileUnreadable, path)
	}
	return data, nil
}
