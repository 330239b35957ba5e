//go:build linux && !nox11

package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xinerama"
	"github.com/jezek/xgb/xproto"

	"github.com/zoomify/zoomify/internal/logging"
)

const directCompiled = true

const allPlanes = ^uint32(0)

// x11Session reads monitors from the root window of the default screen.
type x11Session struct {
	conn   *xgb.Conn
	setup  *xproto.SetupInfo
	screen *xproto.ScreenInfo
	useShm bool
	log    *slog.Logger
}

func openDirectSession(l *slog.Logger) (directSession, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDisplayServerConnection, err)
	}

	setup := xproto.Setup(conn)
	if setup == nil || len(setup.Roots) == 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: X server reported no screens", ErrNoDisplayServerConnection)
	}

	s := &x11Session{
		conn:   conn,
		setup:  setup,
		screen: setup.DefaultScreen(conn),
		log:    l,
	}
	s.useShm = s.initShm()
	l.Debug("connected to X server",
		"vendor", setup.Vendor,
		"screen", fmt.Sprintf("%dx%d", s.screen.WidthInPixels, s.screen.HeightInPixels),
		"depth", s.screen.RootDepth,
		"shm", s.useShm)
	return s, nil
}

func (s *x11Session) Close() error {
	s.conn.Close()
	return nil
}

func (s *x11Session) Root() (monitor, error) {
	w, h := int(s.screen.WidthInPixels), int(s.screen.HeightInPixels)
	if w == 0 || h == 0 {
		return monitor{}, fmt.Errorf("%w: root window is %dx%d", ErrEnumeration, w, h)
	}
	return monitor{name: "root", width: w, height: h, primary: true}, nil
}

func (s *x11Session) Monitors(ctx context.Context) ([]monitor, error) {
	if err := xinerama.Init(s.conn); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMultiMonitorExtension, err)
	}
	active, err := xinerama.IsActive(s.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMultiMonitorExtension, err)
	}
	if active.State == 0 {
		return nil, fmt.Errorf("%w: xinerama is not active", ErrNoMultiMonitorExtension)
	}

	reply, err := xinerama.QueryScreens(s.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: query screens: %w", ErrEnumeration, err)
	}

	monitors := make([]monitor, 0, len(reply.ScreenInfo))
	for i, info := range reply.ScreenInfo {
		monitors = append(monitors, monitor{
			index:  i,
			x:      int(info.XOrg),
			y:      int(info.YOrg),
			width:  int(info.Width),
			height: int(info.Height),
		})
	}

	if origin, ok := s.primaryOrigin(); ok {
		for i := range monitors {
			if monitors[i].x == origin.X && monitors[i].y == origin.Y {
				monitors[i].primary = true
				break
			}
		}
	}
	return monitors, nil
}

// primaryOrigin looks up the CRTC origin of the RandR primary output.
func (s *x11Session) primaryOrigin() (image.Point, bool) {
	if err := randr.Init(s.conn); err != nil {
		s.log.Debug("randr unavailable", logging.KeyError, err)
		return image.Point{}, false
	}
	if _, err := randr.QueryVersion(s.conn, 1, 3).Reply(); err != nil {
		s.log.Debug("randr version query failed", logging.KeyError, err)
		return image.Point{}, false
	}

	primary, err := randr.GetOutputPrimary(s.conn, s.screen.Root).Reply()
	if err != nil || primary.Output == 0 {
		return image.Point{}, false
	}
	output, err := randr.GetOutputInfo(s.conn, primary.Output, xproto.TimeCurrentTime).Reply()
	if err != nil || output.Crtc == 0 {
		return image.Point{}, false
	}
	crtc, err := randr.GetCrtcInfo(s.conn, output.Crtc, xproto.TimeCurrentTime).Reply()
	if err != nil {
		return image.Point{}, false
	}
	s.log.Debug("randr primary output", "name", string(output.Name), "x", crtc.X, "y", crtc.Y)
	return image.Pt(int(crtc.X), int(crtc.Y)), true
}

func (s *x11Session) Grab(ctx context.Context, m monitor, dst *image.RGBA) error {
	if err := checkX11Geometry(m); err != nil {
		return err
	}
	if s.useShm {
		err := s.grabShm(m, dst)
		if err == nil {
			return nil
		}
		s.log.Debug("shared memory grab failed, using GetImage", "monitor", m.index, logging.KeyError, err)
	}
	return s.grabCore(m, dst)
}

func (s *x11Session) grabCore(m monitor, dst *image.RGBA) error {
	reply, err := xproto.GetImage(s.conn, xproto.ImageFormatZPixmap, xproto.Drawable(s.screen.Root),
		int16(m.x), int16(m.y), uint16(m.width), uint16(m.height), allPlanes).Reply()
	if err != nil {
		return fmt.Errorf("%w: GetImage: %w", ErrSurfaceReadFailed, err)
	}

	layout, err := s.layout(reply.Depth, reply.Visual)
	if err != nil {
		return err
	}
	return layout.unpack(reply.Data, m.width, m.height, dst)
}

// layout resolves pixel size and padding from the pixmap format of depth,
// and channel masks from visual (the root visual when visual is None).
func (s *x11Session) layout(depth byte, visual xproto.Visualid) (pixelLayout, error) {
	var format *xproto.Format
	for i := range s.setup.PixmapFormats {
		if s.setup.PixmapFormats[i].Depth == depth {
			format = &s.setup.PixmapFormats[i]
			break
		}
	}
	if format == nil {
		return pixelLayout{}, fmt.Errorf("%w: no pixmap format for depth %d", ErrSurfaceReadFailed, depth)
	}

	if visual == 0 {
		visual = s.screen.RootVisual
	}
	vis := s.visual(visual)
	if vis == nil {
		return pixelLayout{}, fmt.Errorf("%w: visual %#x not found", ErrSurfaceReadFailed, visual)
	}

	return pixelLayout{
		bitsPerPixel: int(format.BitsPerPixel),
		scanlinePad:  int(format.ScanlinePad),
		msbFirst:     s.setup.ImageByteOrder == xproto.ImageOrderMSBFirst,
		red:          newChannel(vis.RedMask),
		green:        newChannel(vis.GreenMask),
		blue:         newChannel(vis.BlueMask),
	}, nil
}

func (s *x11Session) visual(id xproto.Visualid) *xproto.VisualInfo {
	for _, depth := range s.screen.AllowedDepths {
		for i := range depth.Visuals {
			if depth.Visuals[i].VisualId == id {
				return &depth.Visuals[i]
			}
		}
	}
	return nil
}

// checkX11Geometry rejects regions the 16-bit GetImage fields cannot carry.
func checkX11Geometry(m monitor) error {
	switch {
	case m.width <= 0 || m.height <= 0:
		return fmt.Errorf("%w: empty region %dx%d", ErrSurfaceReadFailed, m.width, m.height)
	case m.width > math.MaxUint16 || m.height > math.MaxUint16:
		return fmt.Errorf("%w: region %dx%d too large", ErrSurfaceReadFailed, m.width, m.height)
	case m.x < math.MinInt16 || m.x > math.MaxInt16 || m.y < math.MinInt16 || m.y > math.MaxInt16:
		return fmt.Errorf("%w: origin %+d%+d out of range", ErrSurfaceReadFailed, m.x, m.y)
	}
	return nil
}
