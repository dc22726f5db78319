package freshness

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a refresh of the same version is
// already running.
var ErrRunInProgress = errors.New("refresh already running for this version")

// UnsupportedVersionError reports a version with no registered pipeline.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version %q (supported: %v)", e.Version, SupportedVersions())
}
