package capture

import "codeberg.org/mutker/vibesd/internal/errors"

const (
	ErrNoSource      = errors.ErrorCode("capture_no_source")
	ErrOpenFailed    = errors.ErrCaptureInit
	ErrReadFailed    = errors.ErrorCode("capture_read_failed")
	ErrInvalidConfig = errors.ErrorCode("capture_invalid_config")
)
