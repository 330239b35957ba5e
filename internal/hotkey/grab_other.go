//go:build !linux || nox11

package hotkey

import (
	"context"
	"log/slog"
)

func Listen(ctx context.Context, l *slog.Logger, c Chord, presses chan<- struct{}) error {
	return ErrUnsupported
}
