//go:build linux && !noportal

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"github.com/zoomify/zoomify/internal/logging"
)

const (
	outputInterface = "wl_output"
	// maxOutputVersion is the highest wl_output version whose events are handled.
	maxOutputVersion = 4
)

type waylandOutput struct {
	global    uint32
	name      string
	x, y      int32
	width     int32
	height    int32
	transform int32
}

// enumerateOutputs lists the compositor's outputs through the wl_output
// globals. Wayland has no primary output; the caller decides.
func enumerateOutputs(ctx context.Context, l *slog.Logger) ([]monitor, error) {
	display, err := client.Connect("")
	if err != nil {
		return nil, fmt.Errorf("%w: wayland: %w", ErrNoDisplayServerConnection, err)
	}
	wctx := display.Context()
	defer func() {
		if err := wctx.Close(); err != nil {
			l.Debug("close wayland connection", logging.KeyError, err)
		}
	}()

	registry, err := display.GetRegistry()
	if err != nil {
		return nil, fmt.Errorf("%w: get registry: %w", ErrEnumeration, err)
	}

	outputs := make(map[uint32]*waylandOutput)
	registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		if e.Interface != outputInterface {
			return
		}
		version := e.Version
		if version > maxOutputVersion {
			version = maxOutputVersion
		}
		output := client.NewOutput(wctx)
		if err := registry.Bind(e.Name, e.Interface, version, output); err != nil {
			l.Debug("bind wl_output", "global", e.Name, logging.KeyError, err)
			return
		}
		o := &waylandOutput{global: e.Name}
		outputs[e.Name] = o

		output.SetGeometryHandler(func(e client.OutputGeometryEvent) {
			o.x, o.y = e.X, e.Y
			o.transform = e.Transform
		})
		output.SetModeHandler(func(e client.OutputModeEvent) {
			if e.Flags&uint32(client.OutputModeCurrent) == 0 {
				return
			}
			o.width, o.height = e.Width, e.Height
		})
		output.SetNameHandler(func(e client.OutputNameEvent) {
			o.name = e.Name
		})
	})

	// First roundtrip announces globals, second delivers output events.
	for i := 0; i < 2; i++ {
		if err := roundtrip(ctx, display, wctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
		}
	}

	return outputMonitors(l, outputs), nil
}

// outputMonitors orders outputs by global name and converts them to
// monitors. Outputs without a current mode are skipped; rotated outputs
// swap their mode's width and height.
func outputMonitors(l *slog.Logger, outputs map[uint32]*waylandOutput) []monitor {
	globals := make([]uint32, 0, len(outputs))
	for g := range outputs {
		globals = append(globals, g)
	}
	sort.Slice(globals, func(i, j int) bool { return globals[i] < globals[j] })

	monitors := make([]monitor, 0, len(globals))
	for _, g := range globals {
		o := outputs[g]
		if o.width <= 0 || o.height <= 0 {
			l.Debug("skipping output without a current mode", "global", g, "name", o.name)
			continue
		}
		w, h := int(o.width), int(o.height)
		if o.transform%2 == 1 {
			w, h = h, w
		}
		monitors = append(monitors, monitor{
			index:  len(monitors),
			name:   o.name,
			x:      int(o.x),
			y:      int(o.y),
			width:  w,
			height: h,
		})
	}
	return monitors
}

func roundtrip(ctx context.Context, display *client.Display, wctx *client.Context) error {
	cb, err := display.Sync()
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	defer cb.Destroy()

	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { done = true })
	for !done {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wctx.Dispatch(); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}
	return nil
}
