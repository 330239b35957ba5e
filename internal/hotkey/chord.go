// Package hotkey grabs a global key chord and launches the magnifier each
// time it is pressed.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned when the session offers no way to grab a key
// globally.
var ErrUnsupported = errors.New("global hotkeys are not supported in this session")

// Modifier bits. The values are the X11 core protocol masks.
const (
	ModShift   uint16 = 1 << 0
	ModControl uint16 = 1 << 2
	ModAlt     uint16 = 1 << 3
	ModSuper   uint16 = 1 << 6
)

// DefaultChord is used when no hotkey is configured.
const DefaultChord = "super+shift+z"

var modifierNames = map[string]uint16{
	"shift":   ModShift,
	"ctrl":    ModControl,
	"control": ModControl,
	"alt":     ModAlt,
	"mod1":    ModAlt,
	"super":   ModSuper,
	"mod4":    ModSuper,
	"cmd":     ModSuper,
	"win":     ModSuper,
}

// Chord is a key plus the modifiers that must be held with it.
type Chord struct {
	Mods   uint16
	Keysym uint32
	Key    string
}

// Parse reads a chord such as "super+shift+z" or "ctrl+alt+f9". At least
// one modifier is required so the grab never swallows plain typing.
func Parse(s string) (Chord, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) < 2 {
		return Chord{}, fmt.Errorf("hotkey %q needs a modifier and a key", s)
	}

	var c Chord
	for _, p := range parts[:len(parts)-1] {
		p = strings.TrimSpace(p)
		mod, ok := modifierNames[p]
		if !ok {
			return Chord{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
		if c.Mods&mod != 0 {
			return Chord{}, fmt.Errorf("hotkey %q: modifier %q repeated", s, p)
		}
		c.Mods |= mod
	}

	c.Key = strings.TrimSpace(parts[len(parts)-1])
	sym, ok := keysym(c.Key)
	if !ok {
		return Chord{}, fmt.Errorf("hotkey %q: unsupported key %q", s, c.Key)
	}
	c.Keysym = sym
	return c, nil
}

// String returns the chord with modifiers in a fixed order.
func (c Chord) String() string {
	var parts []string
	for _, m := range []struct {
		bit  uint16
		name string
	}{{ModControl, "ctrl"}, {ModAlt, "alt"}, {ModSuper, "super"}, {ModShift, "shift"}} {
		if c.Mods&m.bit != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, c.Key), "+")
}

// keysym maps a key name to its X11 keysym. Letters use the lowercase
// keysym, which is what keyboard mappings list in the first column.
func keysym(key string) (uint32, bool) {
	switch {
	case len(key) == 1 && key[0] >= 'a' && key[0] <= 'z':
		return uint32(key[0]), true
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		return uint32(key[0]), true
	case key == "space":
		return 0x20, true
	case key == "escape", key == "esc":
		return 0xff1b, true
	case len(key) >= 2 && key[0] == 'f':
		var n int
		if _, err := fmt.Sscanf(key[1:], "%d", &n); err != nil || n < 1 || n > 12 || fmt.Sprint(n) != key[1:] {
			return 0, false
		}
		return 0xffbe + uint32(n-1), true
	}
	return 0, false
}

// keycodeFor finds the first keycode whose mapping contains sym. syms is
// the flattened GetKeyboardMapping reply starting at first.
func keycodeFor(first byte, perCode int, syms []uint32, sym uint32) (byte, bool) {
	if perCode <= 0 {
		return 0, false
	}
	for i, s := range syms {
		if s == sym {
			return first + byte(i/perCode), true
		}
	}
	return 0, false
}
