package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zoomify/zoomify/internal/hotkey"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult splits problems into fatals, which stop startup, and
// warnings, which were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config. Out-of-range viewer values are clamped
// and reported as warnings. Contradictory limits are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	d := Default()

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), using info", c.LogLevel))
		c.LogLevel = "info"
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), using text", c.LogFormat))
		c.LogFormat = "text"
	}
	if c.LogMaxSizeMB < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_max_size_mb %d is below minimum 1, using %d", c.LogMaxSizeMB, d.LogMaxSizeMB))
		c.LogMaxSizeMB = d.LogMaxSizeMB
	}
	if c.LogMaxBackups < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_max_backups %d is negative, using %d", c.LogMaxBackups, d.LogMaxBackups))
		c.LogMaxBackups = d.LogMaxBackups
	}

	if _, err := hotkey.Parse(c.Hotkey); err != nil {
		r.Warnings = append(r.Warnings, fmt.Errorf("%w, using %s", err, d.Hotkey))
		c.Hotkey = d.Hotkey
	}

	v := &c.Viewer
	if v.ZoomMin <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("viewer.zoom_min %g must be positive, using %g", v.ZoomMin, d.Viewer.ZoomMin))
		v.ZoomMin = d.Viewer.ZoomMin
	}
	if v.ZoomMax <= v.ZoomMin {
		r.Fatals = append(r.Fatals, fmt.Errorf("viewer.zoom_max %g must exceed viewer.zoom_min %g", v.ZoomMax, v.ZoomMin))
	}
	if v.ZoomStep <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("viewer.zoom_step %g must be positive, using %g", v.ZoomStep, d.Viewer.ZoomStep))
		v.ZoomStep = d.Viewer.ZoomStep
	} else if v.ZoomStep > 10 {
		r.Warnings = append(r.Warnings, fmt.Errorf("viewer.zoom_step %g exceeds maximum 10, clamping", v.ZoomStep))
		v.ZoomStep = 10
	}

	if v.SpotlightRadiusMin < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("viewer.spotlight_radius_min %g is negative, using %g", v.SpotlightRadiusMin, d.Viewer.SpotlightRadiusMin))
		v.SpotlightRadiusMin = d.Viewer.SpotlightRadiusMin
	}
	if v.SpotlightRadiusMax <= v.SpotlightRadiusMin {
		r.Fatals = append(r.Fatals, fmt.Errorf("viewer.spotlight_radius_max %g must exceed viewer.spotlight_radius_min %g", v.SpotlightRadiusMax, v.SpotlightRadiusMin))
	} else if v.SpotlightRadius <= v.SpotlightRadiusMin || v.SpotlightRadius >= v.SpotlightRadiusMax {
		mid := clamp(d.Viewer.SpotlightRadius, v.SpotlightRadiusMin, v.SpotlightRadiusMax)
		if mid <= v.SpotlightRadiusMin || mid >= v.SpotlightRadiusMax {
			mid = (v.SpotlightRadiusMin + v.SpotlightRadiusMax) / 2
		}
		r.Warnings = append(r.Warnings, fmt.Errorf("viewer.spotlight_radius %g is outside (%g, %g), using %g",
			v.SpotlightRadius, v.SpotlightRadiusMin, v.SpotlightRadiusMax, mid))
		v.SpotlightRadius = mid
	}

	for _, err := range r.Fatals {
		slog.Error("config validation", "error", err)
	}
	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
