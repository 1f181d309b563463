package director

import "codeberg.org/mutker/vibesd/internal/errors"

const (
	ErrTransport   = errors.ErrorCode("director_transport_failed")
	ErrBadStatus   = errors.ErrorCode("director_bad_status")
	ErrParse       = errors.ErrorCode("director_parse_failed")
	ErrSchema      = errors.ErrorCode("director_schema_invalid")
	ErrProbeFailed = errors.ErrorCode("director_probe_failed")
)
