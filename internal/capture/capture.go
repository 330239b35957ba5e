// Package capture takes a single still screenshot of every monitor.
//
// Two backends exist. The direct backend reads the framebuffer through the
// windowing system (X11 on Linux, the OS APIs on macOS and Windows) and
// returns one PNG per monitor. The portal backend asks the desktop portal
// over D-Bus for a composed screenshot and returns exactly one PNG.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/zoomify/zoomify/internal/logging"
)

var log = logging.L("capture")

// Result is the capture of one monitor.
type Result struct {
	// Image holds PNG bytes owned by the caller.
	Image []byte

	// X and Y locate the monitor in the virtual desktop. They can be negative.
	X, Y int

	Width, Height int
	Primary       bool
	Index         int
	Backend       Kind
}

// Bounds returns the monitor rectangle in virtual desktop coordinates.
func (r Result) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// monitor is the geometry of one physical display.
type monitor struct {
	index   int
	name    string
	x, y    int
	width   int
	height  int
	primary bool
}

func (m monitor) String() string {
	return fmt.Sprintf("#%d %dx%d%+d%+d", m.index, m.width, m.height, m.x, m.y)
}

// directSession is an open display-server connection that enumerates
// monitors and reads their pixels.
type directSession interface {
	// Monitors returns every attached monitor. It fails with
	// ErrNoMultiMonitorExtension when the server cannot report them.
	Monitors(ctx context.Context) ([]monitor, error)
	// Root returns the whole screen as one monitor.
	Root() (monitor, error)
	// Grab reads the monitor's region into dst.
	Grab(ctx context.Context, m monitor, dst *image.RGBA) error
	Close() error
}

// portalRequester performs one screenshot request through the portal and
// returns the resulting file contents. observe is told about protocol steps.
type portalRequester interface {
	Request(ctx context.Context, observe func(State)) ([]byte, error)
}

// Capturer drives one capture. It is not safe for concurrent use.
type Capturer struct {
	log    *slog.Logger
	getenv func(string) string
	caps   Capabilities

	openDirect       func(*slog.Logger) (directSession, error)
	newPortal        func(*slog.Logger) portalRequester
	enumerateOutputs func(context.Context, *slog.Logger) ([]monitor, error)
	alloc            pixelAllocator
	encode           func(*image.RGBA) ([]byte, error)

	state State
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithGetenv replaces the environment lookup used for backend selection.
func WithGetenv(fn func(string) string) Option {
	return func(c *Capturer) {
		if fn != nil {
			c.getenv = fn
		}
	}
}

// New returns a Capturer wired to the backends compiled into this build.
func New(opts ...Option) *Capturer {
	c := &Capturer{
		log:              log,
		getenv:           os.Getenv,
		caps:             BuildCapabilities(),
		openDirect:       openDirectSession,
		newPortal:        newPortalRequester,
		enumerateOutputs: enumerateOutputs,
		alloc:            newFramePool(),
		encode:           encodePNG,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the pipeline state reached by the last Capture call.
func (c *Capturer) State() State {
	return c.state
}

// Capture selects a backend and captures every monitor. On success the
// slice is non-empty and owned by the caller. On failure it is nil and
// nothing captured so far is kept.
func (c *Capturer) Capture(ctx context.Context) ([]Result, error) {
	start := time.Now()
	c.state = StateUnselected

	backend, err := SelectBackend(c.caps, c.getenv(SessionTypeEnv))
	if err != nil {
		c.transition(StateFailed)
		c.log.Error("capture backend unavailable",
			logging.KeySession, backend.SessionType,
			"reason", backend.Reason,
			logging.KeyError, err)
		return nil, err
	}
	base := c.log
	c.log = logging.WithBackend(base, backend.Kind.String(), backend.SessionType)
	defer func() { c.log = base }()
	c.transition(StateBackendChosen)

	var results []Result
	switch backend.Kind {
	case KindDirect:
		results, err = c.captureDirect(ctx)
	case KindPortal:
		results, err = c.capturePortal(ctx)
	default:
		err = fmt.Errorf("%w: backend %s", ErrBackendUnavailable, backend)
	}
	if err != nil {
		failedIn := c.state
		c.transition(StateFailed)
		c.log.Error("capture failed",
			"state", failedIn.String(),
			logging.KeyError, err)
		return nil, err
	}

	c.transition(StateAssembled)
	c.log.Info("capture complete",
		"count", len(results),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return results, nil
}

func (c *Capturer) transition(to State, args ...any) {
	from := c.state
	c.state = to
	c.log.Debug("capture state", append([]any{"from", from.String(), "to", to.String()}, args...)...)
}

func (c *Capturer) captureDirect(ctx context.Context) ([]Result, error) {
	c.transition(StateEnumerating)

	session, err := c.openDirect(c.log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.log.Warn("close display session", logging.KeyError, err)
		}
	}()

	monitors, err := session.Monitors(ctx)
	if errors.Is(err, ErrNoMultiMonitorExtension) {
		c.log.Warn("multi-monitor query unavailable, capturing the root window as one monitor", logging.KeyError, err)
		root, rootErr := session.Root()
		if rootErr != nil {
			return nil, rootErr
		}
		monitors, err = []monitor{root}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, fmt.Errorf("%w: display server reported zero monitors", ErrEnumeration)
	}
	normalizePrimary(monitors)

	for _, m := range monitors {
		c.log.Debug("monitor", "monitor", m.String(), "primary", m.primary, "name", m.name)
	}

	results := make([]Result, 0, len(monitors))
	for _, m := range monitors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := c.captureMonitor(ctx, session, m)
		if err != nil {
			return nil, fmt.Errorf("monitor %s: %w", m, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// captureMonitor grabs and encodes one monitor. The scratch frame is
// returned to the allocator before it returns, whatever the outcome.
func (c *Capturer) captureMonitor(ctx context.Context, session directSession, m monitor) (Result, error) {
	if m.width <= 0 || m.height <= 0 {
		return Result{}, fmt.Errorf("%w: invalid geometry %dx%d", ErrSurfaceReadFailed, m.width, m.height)
	}

	c.transition(StateGrabbing, "monitor", m.index)
	frame := c.alloc.Get(m.width, m.height)
	defer c.alloc.Put(frame)

	if err := session.Grab(ctx, m, frame); err != nil {
		return Result{}, err
	}

	c.transition(StateEncoding, "monitor", m.index)
	data, err := c.encode(frame)
	if err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, ErrEncodingFailed
	}

	return Result{
		Image:   data,
		X:       m.x,
		Y:       m.y,
		Width:   m.width,
		Height:  m.height,
		Primary: m.primary,
		Index:   m.index,
		Backend: KindDirect,
	}, nil
}

func (c *Capturer) capturePortal(ctx context.Context) ([]Result, error) {
	origin := monitor{primary: true}
	outputs, err := c.enumerateOutputs(ctx, c.log)
	switch {
	case err != nil:
		c.log.Warn("output enumeration failed, placing portal capture at the origin", logging.KeyError, err)
	case len(outputs) == 0:
		c.log.Warn("compositor reported no outputs, placing portal capture at the origin")
	default:
		normalizePrimary(outputs)
		for _, o := range outputs {
			if o.primary {
				origin = o
			}
		}
	}

	c.transition(StateRequesting)
	data, err := c.newPortal(c.log).Request(ctx, func(s State) { c.transition(s) })
	if err != nil {
		return nil, err
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image header: %w", ErrTemporaryFileUnreadable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrTemporaryFileUnreadable, cfg.Width, cfg.Height)
	}
	if origin.width != 0 && (origin.width != cfg.Width || origin.height != cfg.Height) {
		c.log.Debug("portal image spans more than the primary output",
			"primary", origin.String(), "width", cfg.Width, "height", cfg.Height)
	}

	return []Result{{
		Image:   data,
		X:       origin.x,
		Y:       origin.y,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Primary: true,
		Backend: KindPortal,
	}}, nil
}

// normalizePrimary leaves exactly one monitor flagged primary: the first
// already flagged, else the one at the desktop origin, else the first.
func normalizePrimary(monitors []monitor) {
	idx := -1
	for i, m := range monitors {
		if m.primary {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, m := range monitors {
			if m.x == 0 && m.y == 0 {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		idx = 0
	}
	for i := range monitors {
		monitors[i].primary = i == idx
	}
}
