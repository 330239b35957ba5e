package capture

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/zoomify/zoomify/internal/logging"
)

// Environment reports what the running binary and session offer for
// capture. It backs the env diagnostics command.
type Environment struct {
	OS              string       `json:"os" yaml:"os"`
	Platform        string       `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVersion string       `json:"platformVersion,omitempty" yaml:"platformVersion,omitempty"`
	KernelVersion   string       `json:"kernelVersion,omitempty" yaml:"kernelVersion,omitempty"`
	SessionType     string       `json:"sessionType" yaml:"sessionType"`
	Display         string       `json:"display,omitempty" yaml:"display,omitempty"`
	WaylandDisplay  string       `json:"waylandDisplay,omitempty" yaml:"waylandDisplay,omitempty"`
	Capabilities    Capabilities `json:"capabilities" yaml:"capabilities"`
	Backend         string       `json:"backend" yaml:"backend"`
	Available       bool         `json:"available" yaml:"available"`
	Message         string       `json:"message,omitempty" yaml:"message,omitempty"`
}

// DetectEnvironment resolves the backend that Capture would use without
// touching the display server.
func DetectEnvironment(getenv func(string) string) Environment {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := Environment{
		OS:             runtime.GOOS,
		SessionType:    getenv(SessionTypeEnv),
		Display:        getenv("DISPLAY"),
		WaylandDisplay: getenv("WAYLAND_DISPLAY"),
		Capabilities:   BuildCapabilities(),
	}

	if info, err := host.Info(); err == nil {
		env.Platform = info.Platform
		env.PlatformVersion = info.PlatformVersion
		env.KernelVersion = info.KernelVersion
	} else {
		log.Debug("host info unavailable", logging.KeyError, err)
	}

	backend, err := SelectBackend(env.Capabilities, env.SessionType)
	env.Backend = backend.Kind.String()
	env.Available = err == nil
	if err != nil {
		env.Message = backend.Reason
	}
	return env
}
