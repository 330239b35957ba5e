//go:build darwin || windows

package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"runtime"

	"github.com/kbinani/screenshot"
)

const directCompiled = true

// nativeSession captures through the operating system's display APIs.
type nativeSession struct {
	log *slog.Logger
}

func openDirectSession(l *slog.Logger) (directSession, error) {
	return nativeSession{log: l}, nil
}

func (nativeSession) Close() error { return nil }

func (s nativeSession) Monitors(ctx context.Context) ([]monitor, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrEnumeration)
	}
	bounds := make([]image.Rectangle, n)
	for i := range bounds {
		bounds[i] = screenshot.GetDisplayBounds(i)
	}
	return displayMonitors(bounds, runtime.GOOS == "darwin"), nil
}

// displayMonitors converts display bounds to monitors. CoreGraphics lists
// the main display first; EnumDisplayMonitors has no such order, so on
// Windows the primary is left to normalizePrimary, which picks the display
// at the origin.
func displayMonitors(bounds []image.Rectangle, mainFirst bool) []monitor {
	monitors := make([]monitor, 0, len(bounds))
	for i, b := range bounds {
		monitors = append(monitors, monitor{
			index:   i,
			x:       b.Min.X,
			y:       b.Min.Y,
			width:   b.Dx(),
			height:  b.Dy(),
			primary: mainFirst && i == 0,
		})
	}
	return monitors
}

func (s nativeSession) Root() (monitor, error) {
	b := screenshot.GetDisplayBounds(0)
	if b.Empty() {
		return monitor{}, fmt.Errorf("%w: main display has no bounds", ErrEnumeration)
	}
	return monitor{x: b.Min.X, y: b.Min.Y, width: b.Dx(), height: b.Dy(), primary: true}, nil
}

func (s nativeSession) Grab(ctx context.Context, m monitor, dst *image.RGBA) error {
	img, err := screenshot.CaptureRect(image.Rect(m.x, m.y, m.x+m.width, m.y+m.height))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceReadFailed, err)
	}
	if img.Rect.Dx() != m.width || img.Rect.Dy() != m.height {
		return fmt.Errorf("%w: got %v for %s", ErrSurfaceReadFailed, img.Rect, m)
	}
	draw.Draw(dst, dst.Rect, img, img.Rect.Min, draw.Src)
	return nil
}
