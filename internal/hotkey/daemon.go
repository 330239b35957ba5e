package hotkey

import (
	"context"
	"log/slog"
	"time"

	"github.com/zoomify/zoomify/internal/logging"
)

// ListenFunc grabs c and sends on presses for every press until ctx is
// done. It returns nil when ctx ends the grab.
type ListenFunc func(ctx context.Context, l *slog.Logger, c Chord, presses chan<- struct{}) error

// Run calls launch once per press of c until ctx is done or the listener
// fails. Launches never overlap and presses made during one are dropped.
func Run(ctx context.Context, l *slog.Logger, c Chord, listen ListenFunc, launch func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	presses := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() { errc <- listen(ctx, l, c, presses) }()

	l.Info("waiting for hotkey", "hotkey", c.String())
	for {
		select {
		case <-ctx.Done():
			return <-errc
		case err := <-errc:
			return err
		case <-presses:
			start := time.Now()
			err := launch(ctx)
			took := time.Since(start).Milliseconds()
			switch {
			case ctx.Err() != nil:
			case err != nil:
				l.Warn("magnifier exited with an error", logging.KeyDurationMs, took, logging.KeyError, err)
			default:
				l.Debug("magnifier closed", logging.KeyDurationMs, took)
			}
			drain(presses)
		}
	}
}

func drain(presses <-chan struct{}) {
	for {
		select {
		case <-presses:
		default:
			return
		}
	}
}
