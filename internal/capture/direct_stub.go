//go:build !darwin && !windows && (!linux || nox11)

package capture

import (
	"fmt"
	"log/slog"
)

const directCompiled = false

func openDirectSession(*slog.Logger) (directSession, error) {
	return nil, fmt.Errorf("%w: direct capture not compiled in", ErrBackendUnavailable)
}
