//go:build !linux || noportal

package capture

import (
	"context"
	"fmt"
	"log/slog"
)

const portalCompiled = false

type noPortal struct{}

func newPortalRequester(*slog.Logger) portalRequester { return noPortal{} }

func (noPortal) Request(context.Context, func(State)) ([]byte, error) {
	return nil, fmt.Errorf("%w: screenshot portal support not compiled in", ErrBackendUnavailable)
}

func enumerateOutputs(context.Context, *slog.Logger) ([]monitor, error) {
	return nil, fmt.Errorf("%w: wayland support not compiled in", ErrBackendUnavailable)
}
