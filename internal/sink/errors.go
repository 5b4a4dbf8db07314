package sink

import "codeberg.org/mutker/thermopoll/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("sink_invalid_config")
	ErrSubmitFailed  = errors.ErrorCode("sink_submit_failed")
	ErrSubmitStatus  = errors.ErrorCode("sink_submit_status")
)
