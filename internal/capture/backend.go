package capture

import (
	"fmt"
	"strings"
)

// SessionTypeEnv names the environment variable that tells which display
// server family the login session runs.
const SessionTypeEnv = "XDG_SESSION_TYPE"

// Kind tags the capture backend variant.
type Kind int

const (
	KindUnsupported Kind = iota
	// KindDirect reads the framebuffer through windowing-system calls.
	KindDirect
	// KindPortal delegates the capture to the desktop portal over D-Bus.
	KindPortal
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindPortal:
		return "portal"
	default:
		return "unsupported"
	}
}

// Capabilities lists the backends compiled into this build.
type Capabilities struct {
	Direct bool
	Portal bool
	// SessionScoped is set on platforms where the running session decides
	// between backends (Linux: X11 or Wayland).
	SessionScoped bool
}

// BuildCapabilities returns the capabilities of the running binary.
func BuildCapabilities() Capabilities {
	return Capabilities{
		Direct:        directCompiled,
		Portal:        portalCompiled,
		SessionScoped: sessionScoped,
	}
}

// Backend is the outcome of backend selection.
type Backend struct {
	Kind        Kind
	SessionType string
	// Reason explains a KindUnsupported outcome.
	Reason string
}

func (b Backend) String() string {
	if b.SessionType == "" {
		return b.Kind.String()
	}
	return b.Kind.String() + "/" + b.SessionType
}

// SelectBackend resolves the backend for a build and a session type. It never
// falls back: an unsupported combination yields KindUnsupported together
// with an error matching ErrBackendUnavailable.
func SelectBackend(caps Capabilities, sessionType string) (Backend, error) {
	session := strings.ToLower(strings.TrimSpace(sessionType))

	if !caps.Direct && !caps.Portal {
		return unsupported(session, "no capture backend compiled into this build")
	}

	if !caps.SessionScoped {
		if caps.Direct {
			return Backend{Kind: KindDirect, SessionType: session}, nil
		}
		return Backend{Kind: KindPortal, SessionType: session}, nil
	}

	switch session {
	case "x11":
		if !caps.Direct {
			return unsupported(session, "session type \"x11\" requires direct X11 capture, which this build lacks (built with nox11)")
		}
		return Backend{Kind: KindDirect, SessionType: session}, nil
	case "wayland":
		if !caps.Portal {
			return unsupported(session, "session type \"wayland\" requires screenshot portal support, which this build lacks (built with noportal)")
		}
		return Backend{Kind: KindPortal, SessionType: session}, nil
	case "":
		return unsupported(session, SessionTypeEnv+" is not set; cannot tell x11 from wayland")
	default:
		return unsupported(session, fmt.Sprintf("session type %q is not supported (want x11 or wayland)", session))
	}
}

func unsupported(session, reason string) (Backend, error) {
	b := Backend{Kind: KindUnsupported, SessionType: session, Reason: reason}
	return b, fmt.Errorf("%w: %s", ErrBackendUnavailable, reason)
}
