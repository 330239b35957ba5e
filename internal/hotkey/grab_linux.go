//go:build linux && !nox11

package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/zoomify/zoomify/internal/logging"
)

// Lock and NumLock (Mod2) must not stop the chord from matching, so the
// key is grabbed once per combination of them.
const ignoredMods = uint16(xproto.ModMaskLock | xproto.ModMask2)

var lockCombos = []uint16{0, uint16(xproto.ModMaskLock), uint16(xproto.ModMask2), ignoredMods}

// Listen grabs c on the root window of the default X screen. Grabs end with
// the connection, which is closed when ctx is done.
func Listen(ctx context.Context, l *slog.Logger, c Chord, presses chan<- struct{}) error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("%w: connect to X server: %w", ErrUnsupported, err)
	}
	closeConn := sync.OnceFunc(conn.Close)
	defer closeConn()
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	km, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return fmt.Errorf("keyboard mapping: %w", err)
	}
	syms := make([]uint32, len(km.Keysyms))
	for i, s := range km.Keysyms {
		syms[i] = uint32(s)
	}
	code, ok := keycodeFor(byte(setup.MinKeycode), int(km.KeysymsPerKeycode), syms, c.Keysym)
	if !ok {
		return fmt.Errorf("hotkey %s: key %q is not on this keyboard", c, c.Key)
	}

	for _, extra := range lockCombos {
		err := xproto.GrabKeyChecked(conn, true, root, c.Mods|extra, xproto.Keycode(code),
			xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
		if err != nil {
			return fmt.Errorf("grab %s: %w (is another program using it?)", c, err)
		}
	}
	l.Debug("hotkey grabbed", "hotkey", c.String(), "keycode", code)

	for {
		ev, xerr := conn.WaitForEvent()
		if ev == nil && xerr == nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("X connection closed")
		}
		if xerr != nil {
			l.Debug("X error while waiting for hotkey", logging.KeyError, xerr)
			continue
		}
		kp, ok := ev.(xproto.KeyPressEvent)
		if !ok || byte(kp.Detail) != code || kp.State&^ignoredMods != c.Mods {
			continue
		}
		select {
		case presses <- struct{}{}:
		default:
		}
	}
}
